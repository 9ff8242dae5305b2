package logger

import (
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogger() {
	setGlobal(nil)
	once = sync.Once{}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		format    string
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{"json info", "info", "json", zapcore.InfoLevel, false},
		{"console debug", "debug", "console", zapcore.DebugLevel, false},
		{"json warn", "warn", "json", zapcore.WarnLevel, false},
		{"invalid level", "invalid", "json", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLogger()
			err := Init(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Errorf("Init(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
				return
			}
			if !tt.wantErr && GetLevel() != tt.wantLevel {
				t.Errorf("GetLevel() = %v, want %v", GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	resetLogger()
	if err := Init("info", "json"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel(debug) error = %v", err)
	}
	if GetLevel() != zapcore.DebugLevel {
		t.Errorf("GetLevel() = %v, want debug", GetLevel())
	}
	if err := SetLevel("bogus"); err == nil {
		t.Error("SetLevel(bogus) should fail")
	}
	if LevelHandler().Level() != zapcore.DebugLevel {
		t.Errorf("LevelHandler().Level() = %v, want debug", LevelHandler().Level())
	}
}

func TestL_PanicsWithoutInit(t *testing.T) {
	resetLogger()

	defer func() {
		if r := recover(); r == nil {
			t.Error("L() should panic without Init()")
		}
	}()

	L()
}

func TestReplace(t *testing.T) {
	resetLogger()

	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))

	Warn("driver configuration empty", zap.String("driver", "dummy"))
	Debug("dropped below level")

	if logs.Len() != 1 {
		t.Fatalf("observed %d entries, want 1", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "driver configuration empty" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.ContextMap()["driver"] != "dummy" {
		t.Errorf("driver field = %v, want dummy", entry.ContextMap()["driver"])
	}

	restore()
	if err := Sync(); err != nil {
		t.Errorf("Sync() after restore to nil error = %v", err)
	}
}
