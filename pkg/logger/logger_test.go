package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "default", config: *DefaultConfig()},
		{name: "bad level", config: Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, wantErr: true},
		{name: "bad format", config: Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, wantErr: true},
		{name: "file without path", config: Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func readJSONLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestFieldsAccumulate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reconciler.log")
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Output: FileOutput, File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.WithComponent("matcher").
		WithField("company_id", "acme").
		WithError(fmt.Errorf("boom")).
		Warn("Statement left unmatched")

	lines := readJSONLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	for key, want := range map[string]string{
		"component":  "matcher",
		"company_id": "acme",
		"error":      "boom",
		"level":      "warning",
		"msg":        "Statement left unmatched",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestOperationLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.log")
	log, err := NewLogger(&Config{Level: DebugLevel, Format: JSONFormat, Output: FileOutput, File: path})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	err = TimedOperation("import", log, func() error { return fmt.Errorf("batch failed") })
	if err == nil || err.Error() != "batch failed" {
		t.Fatalf("TimedOperation should return the function error, got %v", err)
	}

	lines := readJSONLines(t, path)
	last := lines[len(lines)-1]
	if last["operation"] != "import" || last["status"] != "error" {
		t.Errorf("unexpected final entry: %v", last)
	}
	if _, ok := last["duration"]; !ok {
		t.Error("final entry should carry the duration")
	}
}
