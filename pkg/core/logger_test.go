package core

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"off", LogLevelSilent},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLogLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDefaultLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("scanimport", LogLevelWarn)
	l.SetOutput(&buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("messages below level were logged: %q", out)
	}
	if !strings.Contains(out, "[scanimport] [WARN] warn 3") {
		t.Errorf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[scanimport] [ERROR] error 4") {
		t.Errorf("missing error line: %q", out)
	}

	buf.Reset()
	l.SetLevel(LogLevelDebug)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Errorf("SetLevel(debug) did not take effect: %q", buf.String())
	}
}

func TestLoggerOrNop(t *testing.T) {
	if _, ok := LoggerOrNop(nil).(*NopLogger); !ok {
		t.Error("LoggerOrNop(nil) should return a NopLogger")
	}
	l := NewDefaultLogger("test", LogLevelInfo)
	if LoggerOrNop(l) != Logger(l) {
		t.Error("LoggerOrNop should return the given logger")
	}
}
