package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("logger logs according to its level", func(t *testing.T) {
		tests := []struct {
			name        string
			level       slog.Level
			shouldDebug bool
			shouldInfo  bool
			shouldWarn  bool
			shouldError bool
		}{
			{"DEBUG", slog.LevelDebug, true, true, true, true},
			{"INFO", slog.LevelInfo, false, true, true, true},
			{"WARN", slog.LevelWarn, false, false, true, true},
			{"ERROR", slog.LevelError, false, false, false, true},
		}
		for _, tc := range tests {
			for _, format := range []string{FormatText, FormatJSON, FormatTint} {
				t.Run(tc.name+" "+format, func(t *testing.T) {
					buf := bytes.NewBuffer(nil)
					l, err := New(tc.level, format, buf)
					if err != nil {
						t.Fatalf("failed to create logger: %s", err)
					}
					l.Debug("debugmsg")
					l.Info("infomsg")
					l.Warn("warnmsg")
					l.Error("errormsg")
					for msg, want := range map[string]bool{
						"debugmsg": tc.shouldDebug,
						"infomsg":  tc.shouldInfo,
						"warnmsg":  tc.shouldWarn,
						"errormsg": tc.shouldError,
					} {
						if got := bytes.Contains(buf.Bytes(), []byte(msg)); got != want {
							t.Errorf("expected %s logged to be %t, got %t", msg, want, got)
						}
					}
				})
			}
		}
	})
	t.Run("json output is one object per record", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		l, err := New(slog.LevelInfo, FormatJSON, buf)
		if err != nil {
			t.Fatalf("failed to create logger: %s", err)
		}
		l.Info("hello", "station", "OSL")
		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("failed to decode record: %s", err)
		}
		if rec["msg"] != "hello" || rec["station"] != "OSL" {
			t.Errorf("unexpected record %v", rec)
		}
	})
	t.Run("unknown formats fail", func(t *testing.T) {
		if _, err := New(slog.LevelInfo, "xml", bytes.NewBuffer(nil)); err == nil {
			t.Error("expected logger creation to fail")
		}
	})
}

func TestErr(t *testing.T) {
	t.Run("errors are logged under the err key", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		l, err := New(slog.LevelDebug, FormatText, buf)
		if err != nil {
			t.Fatalf("failed to create logger: %s", err)
		}
		l.Error("failed", Err(errors.New("broken pipe")))
		if !strings.Contains(buf.String(), `err="broken pipe"`) {
			t.Errorf("expected error attribute in output, got %s", buf.String())
		}
	})
}
