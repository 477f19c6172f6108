package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogRequestWritesJSON(t *testing.T) {
	logger := Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogRequest(map[string]any{"method": "GET", "path": "/healthz", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "method", "path", "status"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("missing %q in %v", key, entry)
		}
	}
	if entry["level"] != "info" {
		t.Fatalf("level = %v", entry["level"])
	}
}

func TestSetLevel(t *testing.T) {
	logger := Logger()
	original := logger.GetLevel()
	defer logger.SetLevel(original)

	SetLevel("debug")
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v", logger.GetLevel())
	}
	var buf bytes.Buffer
	out := logger.Out
	logger.SetOutput(&buf)
	defer logger.SetOutput(out)
	SetLevel("chatty")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("unknown level should fall back to info, got %v", logger.GetLevel())
	}
}
