package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/haasonsaas/agentdesk/pkg/models"
	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini generateContent API. The assistant role is
// sent as "model" and the system prompt as systemInstruction.
type GeminiProvider struct {
	defaultBaseURL string
	httpClient     *http.Client
	retry          retrier
	logger         *slog.Logger
}

func NewGeminiProvider(opts Options) *GeminiProvider {
	opts = opts.withDefaults()
	return &GeminiProvider{
		defaultBaseURL: opts.baseURL("gemini", GeminiBaseURL),
		httpClient:     opts.HTTPClient,
		retry:          retrier{policy: opts.Backoff, maxAttempts: opts.MaxAttempts},
		logger:         opts.Logger.With("component", "provider", "provider", "gemini"),
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Call(ctx context.Context, creds models.ProviderCredentials, model string, messages []models.ChatMessage) (*Response, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, NewProviderError("gemini", model, errors.New("api key is required")).WithStatus(http.StatusUnauthorized)
	}
	baseURL := p.defaultBaseURL
	if v := strings.TrimSpace(creds.BaseURL); v != "" {
		baseURL = v
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      creds.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  withTransport(p.httpClient, &queryKeyTransport{base: transportOf(p.httpClient)}),
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, NewProviderError("gemini", model, err)
	}

	system, turns := splitSystem(messages)
	config := &genai.GenerateContentConfig{MaxOutputTokens: DefaultMaxTokens}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	contents := toGeminiContents(turns)

	var resp *genai.GenerateContentResponse
	err = p.retry.do(ctx, func() error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, model, contents, config)
		if callErr != nil {
			return wrapGeminiError(model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Response{Content: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func toGeminiContents(turns []models.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		if m.Content == "" {
			continue
		}
		content := &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		if m.Role == models.RoleAssistant {
			content.Role = genai.RoleModel
		} else {
			content.Role = genai.RoleUser
		}
		out = append(out, content)
	}
	return out
}

// queryKeyTransport moves the API key from the x-goog-api-key header into
// the key query parameter.
type queryKeyTransport struct {
	base http.RoundTripper
}

func (t *queryKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key := req.Header.Get("x-goog-api-key")
	if key == "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Del("x-goog-api-key")
	q := clone.URL.Query()
	q.Set("key", key)
	clone.URL.RawQuery = q.Encode()
	return t.base.RoundTrip(clone)
}

func wrapGeminiError(model string, err error) error {
	if _, ok := GetProviderError(err); ok {
		return err
	}
	providerErr := NewProviderError("gemini", model, err).WithBody(err.Error())

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthenticated"):
		providerErr = providerErr.WithStatus(http.StatusUnauthorized)
	case strings.Contains(msg, "403") || strings.Contains(msg, "permission denied") || strings.Contains(msg, "api key not valid"):
		providerErr = providerErr.WithStatus(http.StatusForbidden)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		providerErr = providerErr.WithStatus(http.StatusNotFound)
	case strings.Contains(msg, "429") || strings.Contains(msg, "resource exhausted"):
		providerErr = providerErr.WithStatus(http.StatusTooManyRequests)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid argument"):
		providerErr = providerErr.WithStatus(http.StatusBadRequest)
	case strings.Contains(msg, "500"):
		providerErr = providerErr.WithStatus(http.StatusInternalServerError)
	case strings.Contains(msg, "503"):
		providerErr = providerErr.WithStatus(http.StatusServiceUnavailable)
	}
	return providerErr
}
