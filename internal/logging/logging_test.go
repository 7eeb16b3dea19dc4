package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.in); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, cfg := range []Config{{Level: "debug"}, {Level: "error", Development: true}} {
		l, err := New(cfg)
		if err != nil {
			t.Fatalf("New(%+v): %v", cfg, err)
		}
		want := LevelFromString(cfg.Level)
		if !l.Core().Enabled(want) {
			t.Errorf("level %v should be enabled", want)
		}
		if want > zapcore.DebugLevel && l.Core().Enabled(want-1) {
			t.Errorf("level %v should be disabled", want-1)
		}
		_ = l.Sync()
	}
}
