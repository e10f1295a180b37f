package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/cobot/pkg/acquire"
	"github.com/gwillem/cobot/pkg/config"
	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/logging"
	"github.com/gwillem/cobot/pkg/robot"
	"github.com/gwillem/cobot/pkg/sim"
)

// WorkcellOptions are shared by every command that drives the arm.
type WorkcellOptions struct {
	Bench   bool   `long:"bench" description:"Use the real tool board from the config with the simulated arm"`
	Instant bool   `long:"instant" description:"Run simulated moves without delay"`
	LogFile string `long:"log" description:"Write logs to this file instead of stdout"`
}

// workcell is an arm, tool and locator wired to a supervisor.
type workcell struct {
	cfg     *config.Config
	cell    *sim.Cell
	sup     *acquire.Supervisor
	logger  *zap.SugaredLogger
	closers []func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(opts.Env); err != nil {
		return nil, err
	}
	if !config.Exists(opts.Config) {
		cfg := config.Default()
		cfg.ApplyEnv()
		return cfg, nil
	}
	cfg, err := config.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(logFile string) (*zap.SugaredLogger, error) {
	if logFile == "" {
		return logging.New("cobot", opts.Debug)
	}
	return logging.New("cobot", opts.Debug, logFile)
}

func openWorkcell(ctx context.Context, wo WorkcellOptions) (*workcell, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := newLogger(wo.LogFile)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	w := &workcell{cfg: cfg, logger: logger}

	simCfg := sim.DefaultConfig()
	simCfg.CameraOffset = cfg.Acquisition.ForwardOffset
	simCfg.Home = cfg.Acquisition.ScanPose
	simCfg.Realtime = cfg.Sim.Realtime && !wo.Instant
	w.cell = sim.New(simCfg, logger.Named("sim"), nil, cfg.Sim.Objects...)

	var driver robot.Driver = w.cell
	if wo.Bench {
		tool, err := robot.NewServoTool(ctx, cfg.Tool)
		if err != nil {
			return nil, fmt.Errorf("open tool: %w", err)
		}
		w.closers = append(w.closers, func(context.Context) error { return tool.Close() })
		driver = robot.Compose(w.cell, tool)
		logger.Infow("tool board attached", "port", cfg.Tool.Port)
	}

	loc, err := w.openLocator(ctx)
	if err != nil {
		return nil, multierr.Append(err, w.Close())
	}

	w.sup, err = acquire.New(driver, loc, cfg.Acquisition, logger.Named("acquire"))
	if err != nil {
		return nil, multierr.Append(err, w.Close())
	}
	return w, nil
}

func (w *workcell) openLocator(ctx context.Context) (locator.Locator, error) {
	var loc locator.Locator = w.cell
	if w.cfg.Locator.Kind == config.LocatorMongo {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m, err := locator.DialMongo(dialCtx, w.cfg.Locator.MongoURI, w.cfg.Locator.Database, w.cfg.Locator.Collection)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, m.Close)
		w.logger.Infow("reading detections from mongo", "database", w.cfg.Locator.Database, "collection", w.cfg.Locator.Collection)
		loc = m
	}
	if age := w.cfg.Locator.MaxAge.D(); age > 0 {
		loc = locator.NewFresh(loc, age)
	}
	return loc, nil
}

// Close releases every opened resource.
func (w *workcell) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	for i := len(w.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, w.closers[i](ctx))
	}
	_ = w.logger.Sync()
	return err
}

func mustOpenWorkcell(ctx context.Context, wo WorkcellOptions) *workcell {
	w, err := openWorkcell(ctx, wo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening workcell: %v\n", err)
		os.Exit(1)
	}
	return w
}
