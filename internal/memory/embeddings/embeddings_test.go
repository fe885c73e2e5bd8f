package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

func TestOpenAIEmbedder(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    int
		wantErr error
	}{
		{
			name:   "vector",
			status: http.StatusOK,
			body:   `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`,
			want:   3,
		},
		{
			name:    "no data",
			status:  http.StatusOK,
			body:    `{"object":"list","data":[]}`,
			wantErr: ErrEmptyEmbedding,
		},
		{
			name:   "non-array embedding",
			status: http.StatusOK,
			body:   `{"object":"list","data":[{"object":"embedding","index":0,"embedding":"oops"}]}`,
		},
		{
			name:   "upstream failure",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotModel string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req map[string]any
				_ = json.NewDecoder(r.Body).Decode(&req)
				gotModel, _ = req["model"].(string)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			e := NewOpenAIEmbedder(server.Client())
			vec, err := e.Embed(context.Background(), models.EmbeddingCredentials{APIKey: "k", BaseURL: server.URL}, "hello")

			if tt.want > 0 {
				if err != nil {
					t.Fatalf("Embed() error = %v", err)
				}
				if len(vec) != tt.want {
					t.Fatalf("len = %d, want %d", len(vec), tt.want)
				}
				if gotModel != DefaultModel {
					t.Fatalf("model = %q, want default", gotModel)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(nil).Embed(context.Background(), models.EmbeddingCredentials{}, "x"); err == nil {
		t.Fatal("expected error without api key")
	}
}
