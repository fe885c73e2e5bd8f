package agent

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/haasonsaas/agentdesk/internal/agent/providers"
)

func TestDiagnose(t *testing.T) {
	providerErr := func(status int, body string) error {
		return providers.NewProviderError("openai", "gpt-4o", errors.New("upstream failure")).
			WithStatus(status).
			WithBody(body)
	}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bad model",
			err:  providerErr(http.StatusNotFound, `{"error":{"message":"The model 'gpt-9' does not exist","code":"model_not_found"}}`),
			want: modelHint("openai", "gpt-4o"),
		},
		{
			name: "bad key",
			err:  providerErr(http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided"}}`),
			want: keyHint("openai"),
		},
		{
			name: "forbidden",
			err:  providerErr(http.StatusForbidden, `{"error":{"message":"forbidden"}}`),
			want: keyHint("openai"),
		},
		{
			name: "bad base url",
			err:  providers.NewProviderError("openai", "gpt-4o", errors.New(`Post "https://api.example.invalid/chat/completions": dial tcp: lookup api.example.invalid: no such host`)),
			want: "configured base URL",
		},
		{
			name: "path not found",
			err:  providerErr(http.StatusNotFound, "404 page not found"),
			want: "configured base URL",
		},
		{
			name: "unsupported parameter",
			err:  providerErr(http.StatusBadRequest, `{"error":{"message":"Unsupported parameter: 'max_tokens' is not supported with this model."}}`),
			want: "rejected a request parameter",
		},
		{
			name: "overloaded",
			err:  providerErr(http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`),
			want: "Please try again in a moment.",
		},
		{
			name: "timeout",
			err:  context.DeadlineExceeded,
			want: "Please try again in a moment.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diagnose("openai", "gpt-4o", tt.err)
			if !strings.Contains(got, tt.want) {
				t.Fatalf("Diagnose() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
