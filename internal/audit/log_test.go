package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"loanadmin.org/internal/auth"
	"loanadmin.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Out
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEventEnrichesFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want map[string]any
	}{
		{
			name: "anonymous",
			ctx:  context.Background(),
			want: map[string]any{"type": "audit", "event": "user.login"},
		},
		{
			name: "request and principal",
			ctx: auth.ContextWithPrincipal(
				WithRequestID(context.Background(), "req-123"),
				auth.Principal{UserID: "01HUSER", Username: "asha", RoleID: "01HROLE"},
			),
			want: map[string]any{
				"type":       "audit",
				"event":      "user.login",
				"request_id": "req-123",
				"user_id":    "01HUSER",
				"username":   "asha",
				"role_id":    "01HROLE",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			if err := LogEvent(tt.ctx, " user.login ", map[string]any{"branch": "North"}); err != nil {
				t.Fatalf("LogEvent: %v", err)
			}
			var entry map[string]any
			if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
				t.Fatalf("log not valid JSON: %v", err)
			}
			fields, _ := entry["fields"].(map[string]any)
			if fields["branch"] != "North" {
				t.Fatalf("fields not carried: %v", entry["fields"])
			}
			got := make(map[string]any)
			for _, k := range []string{"type", "event", "request_id", "user_id", "username", "role_id"} {
				if v, ok := entry[k]; ok {
					got[k] = v
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("entry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event")
	}
}

func TestRequestIDIgnoresBlank(t *testing.T) {
	ctx := WithRequestID(context.Background(), "   ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("blank id stored: %q", got)
	}
}
