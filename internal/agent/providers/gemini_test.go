package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

func TestGeminiMapsRolesAndPassesKeyInQuery(t *testing.T) {
	rec := &recordingServer{}
	var mu sync.Mutex
	var query, headerKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.Query().Get("key")
		headerKey = r.Header.Get("x-goog-api-key")
		mu.Unlock()
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "It is 4."}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 4, "totalTokenCount": 16}
		}`))
	}))
	defer server.Close()

	p := NewGeminiProvider(testOptions())
	creds := models.ProviderCredentials{APIKey: "gem-key", BaseURL: server.URL}
	resp, err := p.Call(context.Background(), creds, "gemini-2.0-flash", testMessages())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Content != "It is 4." || resp.TokensUsed != 16 {
		t.Fatalf("resp = %+v", resp)
	}

	mu.Lock()
	defer mu.Unlock()
	if query != "gem-key" {
		t.Errorf("key query = %q", query)
	}
	if headerKey != "" {
		t.Errorf("api key header should be removed, got %q", headerKey)
	}
	if !strings.Contains(rec.path(0), "gemini-2.0-flash:generateContent") {
		t.Errorf("path = %s", rec.path(0))
	}

	body := rec.body(0)
	contents, _ := body["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	roles := make([]string, 0, len(contents))
	for _, c := range contents {
		roles = append(roles, c.(map[string]any)["role"].(string))
	}
	if strings.Join(roles, ",") != "user,model,user" {
		t.Errorf("roles = %v", roles)
	}
	instruction, _ := body["systemInstruction"].(map[string]any)
	parts, _ := instruction["parts"].([]any)
	if len(parts) != 1 || parts[0].(map[string]any)["text"] != "You are Ada." {
		t.Errorf("systemInstruction = %v", body["systemInstruction"])
	}
	config, _ := body["generationConfig"].(map[string]any)
	if config["maxOutputTokens"] != float64(DefaultMaxTokens) {
		t.Errorf("generationConfig = %v", body["generationConfig"])
	}
}

func TestWrapGeminiErrorClassifies(t *testing.T) {
	tests := []struct {
		msg    string
		status int
		reason FailoverReason
	}{
		{"Error 400, Message: API key not valid. Please pass a valid API key., Status: INVALID_ARGUMENT", http.StatusForbidden, FailoverAuth},
		{"Error 404, Message: models/gemini-9 is not found", http.StatusNotFound, FailoverModelUnavailable},
		{"Error 429, Message: Resource exhausted", http.StatusTooManyRequests, FailoverRateLimit},
	}
	for _, tt := range tests {
		err := wrapGeminiError("gemini-9", errString(tt.msg))
		providerErr, ok := GetProviderError(err)
		if !ok {
			t.Fatalf("expected ProviderError for %q", tt.msg)
		}
		if providerErr.Status != tt.status || providerErr.Reason != tt.reason {
			t.Errorf("%q: status=%d reason=%s", tt.msg, providerErr.Status, providerErr.Reason)
		}
		if providerErr.Body != tt.msg {
			t.Errorf("Body = %q", providerErr.Body)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
