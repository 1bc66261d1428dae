package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv("BITE_LOG_LEVEL", "debug")
	t.Setenv("BITE_LOG_PREFIX", "test")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	defer lg.Close()

	lg.Debug("found symbols", "count", 3)
	out := buf.String()
	if !strings.Contains(out, "found symbols") || !strings.Contains(out, "test") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("OrDiscard(nil) returned nil")
	}
	lg := log.New(&bytes.Buffer{})
	if OrDiscard(lg) != lg {
		t.Fatal("OrDiscard should return the given logger")
	}
}
