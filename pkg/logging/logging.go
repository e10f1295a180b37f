// Package logging builds the zap loggers used across cobot.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewConfig returns a console config with coloured levels, ISO8601 times and
// no stacktraces. Output goes to stdout unless paths are given.
func NewConfig(debug bool, paths ...string) zap.Config {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(level),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       paths,
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// New returns a named sugared logger. A full-screen TUI should pass a file
// path so log lines do not tear the display.
func New(name string, debug bool, paths ...string) (*zap.SugaredLogger, error) {
	logger, err := NewConfig(debug, paths...).Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named(name), nil
}

// NewNop returns a logger that discards everything.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
