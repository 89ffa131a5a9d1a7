package util

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// saveLoggerState saves the current logger state for restoration
func saveLoggerState() (io.Writer, logrus.Level, logrus.Formatter) {
	return Logger.Out, Logger.Level, Logger.Formatter
}

// restoreLoggerState restores the logger to its previous state
func restoreLoggerState(out io.Writer, level logrus.Level, formatter logrus.Formatter) {
	Logger.SetOutput(out)
	Logger.SetLevel(level)
	Logger.SetFormatter(formatter)
}

func TestSetLogLevel(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetLogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLevelIsQuiet(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	Logger.SetLevel(logrus.WarnLevel)

	Infof("should not appear")
	if buf.Len() != 0 {
		t.Errorf("info message written at warn level: %q", buf.String())
	}
	Warnf("visible %d", 1)
	if !strings.Contains(buf.String(), "visible 1") {
		t.Errorf("warn message missing: %q", buf.String())
	}
}

func TestWithHop(t *testing.T) {
	out, level, formatter := saveLoggerState()
	defer restoreLoggerState(out, level, formatter)

	var buf bytes.Buffer
	SetLogOutput(&buf)
	SetLogLevel("info")
	SetJSONFormat()

	WithHop(2, "10.0.0.9").Info("resolved")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["device"] != "10.0.0.9" {
		t.Errorf("device = %v, want %q", entry["device"], "10.0.0.9")
	}
	if entry["hop"] != float64(2) {
		t.Errorf("hop = %v, want 2", entry["hop"])
	}
	if entry["msg"] != "resolved" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestWithDevice(t *testing.T) {
	entry := WithDevice("core1")
	if entry.Data["device"] != "core1" {
		t.Errorf("device = %v, want %q", entry.Data["device"], "core1")
	}
	entry = WithField("lookup", "arp")
	if entry.Data["lookup"] != "arp" {
		t.Errorf("lookup = %v", entry.Data["lookup"])
	}
}
