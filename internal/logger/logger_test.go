package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriterLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, LogInfo)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Errorf("failed %s", "tile")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message should be filtered, got %q", out)
	}
	if !strings.Contains(out, "INFO: shown 2") {
		t.Errorf("expected info line, got %q", out)
	}
	if !strings.Contains(out, "ERROR: failed tile") {
		t.Errorf("expected error line, got %q", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogDebug},
		{" DEBUG ", LogDebug},
		{"info", LogInfo},
		{"error", LogError},
		{"", LogInfo},
		{"verbose", LogInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOrNull(t *testing.T) {
	if _, ok := OrNull(nil).(*NullLogger); !ok {
		t.Error("OrNull(nil) should return a NullLogger")
	}
	l := NewStdOutLogger(LogError)
	if OrNull(l) != l {
		t.Error("OrNull should return the given logger unchanged")
	}
}
