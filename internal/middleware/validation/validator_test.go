package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/sellerpulse/backend/internal/assistant"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     assistant.Request
		wantErr string
	}{
		{
			name: "minimal valid request",
			req:  assistant.Request{Message: "how are my listings doing?"},
		},
		{
			name:    "empty message",
			req:     assistant.Request{Message: "   "},
			wantErr: "message is required",
		},
		{
			name:    "message over length cap",
			req:     assistant.Request{Message: strings.Repeat("x", 4001)},
			wantErr: "message exceeds maximum length",
		},
		{
			name:    "unknown capability",
			req:     assistant.Request{Message: "hello", Capability: "mind_reading"},
			wantErr: "unknown capability: mind_reading",
		},
		{
			name: "known capability",
			req:  assistant.Request{Message: "hello", Capability: "keyword-insights"},
		},
		{
			name: "too many marketplaces",
			req: assistant.Request{
				Message: "hello",
				Context: assistant.RequestContext{
					Marketplaces: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
				},
			},
			wantErr: "too many marketplaces",
		},
		{
			name: "blank marketplace id",
			req: assistant.Request{
				Message: "hello",
				Context: assistant.RequestContext{Marketplaces: []string{"US", " "}},
			},
			wantErr: "marketplace ids must be non-empty",
		},
		{
			name: "half-open time range",
			req: assistant.Request{
				Message: "hello",
				Context: assistant.RequestContext{
					TimeRange: &assistant.TimeRange{From: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
				},
			},
			wantErr: "time range requires both from and to",
		},
		{
			name: "inverted time range",
			req: assistant.Request{
				Message: "hello",
				Context: assistant.RequestContext{
					TimeRange: &assistant.TimeRange{
						From: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
						To:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
					},
				},
			},
			wantErr: "time range end precedes start",
		},
		{
			name:    "negative maxTokens",
			req:     assistant.Request{Message: "hello", Options: assistant.RequestOptions{MaxTokens: -1}},
			wantErr: "maxTokens must be non-negative",
		},
		{
			name:    "temperature out of range",
			req:     assistant.Request{Message: "hello", Options: assistant.RequestOptions{Temperature: 2.5}},
			wantErr: "temperature must be between 0 and 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req, Config{})
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("Validate error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTrimsMessage(t *testing.T) {
	req := assistant.Request{Message: "  hello  "}
	if err := Validate(&req, Config{}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if req.Message != "hello" {
		t.Errorf("message = %q, want trimmed", req.Message)
	}
}

func TestValidateRespectsConfiguredCap(t *testing.T) {
	req := assistant.Request{Message: strings.Repeat("x", 50)}
	if err := Validate(&req, Config{MaxMessageLength: 40}); err == nil {
		t.Fatal("expected length error with lowered cap")
	}
}
