package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.viam.com/test"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(false)
	test.That(t, cfg.Level.Level(), test.ShouldEqual, zap.InfoLevel)
	test.That(t, cfg.OutputPaths, test.ShouldResemble, []string{"stdout"})
	test.That(t, cfg.DisableStacktrace, test.ShouldBeTrue)

	cfg = NewConfig(true, "/tmp/x.log")
	test.That(t, cfg.Level.Level(), test.ShouldEqual, zap.DebugLevel)
	test.That(t, cfg.OutputPaths, test.ShouldResemble, []string{"/tmp/x.log"})
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cobot.log")
	logger, err := New("acquire", false, path)
	test.That(t, err, test.ShouldBeNil)

	logger.Infow("run started", "label", "ball")
	test.That(t, logger.Sync(), test.ShouldBeNil)

	b, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(b), test.ShouldContainSubstring, "run started")
	test.That(t, string(b), test.ShouldContainSubstring, "acquire")
	test.That(t, string(b), test.ShouldContainSubstring, "ball")
}
