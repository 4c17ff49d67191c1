package kunci

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
}

func TestZapLoggerForwardsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Info("request complete", "method", "GET", "status", 200)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "request complete" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["method"] != "GET" {
		t.Errorf("expected method field GET, got %v", fields["method"])
	}
	if fields["status"] != int64(200) {
		t.Errorf("expected status field 200, got %v (%T)", fields["status"], fields["status"])
	}
}

func TestNewZapLoggerNil(t *testing.T) {
	logger := NewZapLogger(nil)
	logger.Warn("dropped")
}

func TestNewProductionLogger(t *testing.T) {
	logger, err := NewProductionLogger("warn")
	if err != nil {
		t.Fatalf("NewProductionLogger failed: %v", err)
	}
	logger.Warn("warn message", "key", "value")

	if _, err := NewProductionLogger("not-a-level"); err != nil {
		t.Fatalf("unknown level should fall back to info, got %v", err)
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("debug should be disabled by default")
	}
	if !cfg.LogRequests || !cfg.LogRetries || !cfg.LogCache || !cfg.LogAudit {
		t.Error("all debug categories should be selected by default")
	}
	a, b := cfg.RequestIDGen(), cfg.RequestIDGen()
	if a == "" || a == b {
		t.Errorf("expected distinct request ids, got %q and %q", a, b)
	}
}
