package logging_test

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamusis/catsdogs/internal/logging"
)

func TestInit(t *testing.T) {
	t.Cleanup(func() { logging.Set(nil) })

	if err := logging.Init("release", "warn"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if logging.L().Core().Enabled(zap.InfoLevel) {
		t.Fatal("info should be disabled at warn level")
	}
	if err := logging.Init("debug", ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !logging.L().Core().Enabled(zap.DebugLevel) {
		t.Fatal("development logger should enable debug")
	}
	if err := logging.Init("release", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSet(t *testing.T) {
	t.Cleanup(func() { logging.Set(nil) })

	core, logs := observer.New(zap.InfoLevel)
	logging.Set(zap.New(core))
	logging.L().Info("trained", zap.Int("epochs", 3))
	if logs.Len() != 1 || logs.All()[0].Message != "trained" {
		t.Fatalf("unexpected entries: %v", logs.All())
	}

	logging.Set(nil)
	logging.L().Info("dropped")
	if logs.Len() != 1 {
		t.Fatal("nil should install a no-op logger")
	}
}
