package providers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/haasonsaas/agentdesk/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// fixedBudgetProvider sends one chat-completions request with a max_tokens
// budget of DefaultMaxTokens. Mistral and OpenRouter share it.
type fixedBudgetProvider struct {
	name           string
	defaultBaseURL string
	headers        map[string]string
	httpClient     *http.Client
	retry          retrier
	logger         *slog.Logger
}

func (p *fixedBudgetProvider) Name() string { return p.name }

func (p *fixedBudgetProvider) Call(ctx context.Context, creds models.ProviderCredentials, model string, messages []models.ChatMessage) (*Response, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, NewProviderError(p.name, model, errors.New("api key is required")).WithStatus(http.StatusUnauthorized)
	}
	client := newOpenAIClient(creds, p.defaultBaseURL, p.httpClient, p.headers)
	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  toOpenAIMessages(messages),
		MaxTokens: DefaultMaxTokens,
	}

	var resp openai.ChatCompletionResponse
	err := p.retry.do(ctx, func() error {
		var callErr error
		resp, callErr = client.CreateChatCompletion(ctx, req)
		return wrapOpenAIError(p.name, model, callErr)
	})
	if err != nil {
		return nil, err
	}

	out := &Response{TokensUsed: resp.Usage.TotalTokens}
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		if refusal := strings.TrimSpace(msg.Refusal); refusal != "" {
			p.logger.Info("model refused request", "model", model)
			out.Content = RefusalPrefix + ": " + refusal
		} else {
			out.Content = strings.TrimSpace(messageText(msg))
		}
	}
	return out, nil
}

// MistralProvider calls Mistral's chat-completions endpoint.
type MistralProvider struct {
	fixedBudgetProvider
}

func NewMistralProvider(opts Options) *MistralProvider {
	opts = opts.withDefaults()
	return &MistralProvider{fixedBudgetProvider{
		name:           "mistral",
		defaultBaseURL: opts.baseURL("mistral", MistralBaseURL),
		httpClient:     opts.HTTPClient,
		retry:          retrier{policy: opts.Backoff, maxAttempts: opts.MaxAttempts},
		logger:         opts.Logger.With("component", "provider", "provider", "mistral"),
	}}
}

// OpenRouterProvider calls OpenRouter, which requires attribution headers
// identifying the calling application.
type OpenRouterProvider struct {
	fixedBudgetProvider
}

const defaultOpenRouterAppName = "agentdesk"

func NewOpenRouterProvider(opts Options) *OpenRouterProvider {
	opts = opts.withDefaults()
	appName := strings.TrimSpace(opts.OpenRouterAppName)
	if appName == "" {
		appName = defaultOpenRouterAppName
	}
	return &OpenRouterProvider{fixedBudgetProvider{
		name:           "openrouter",
		defaultBaseURL: opts.baseURL("openrouter", OpenRouterBaseURL),
		headers: map[string]string{
			"X-Title":      appName,
			"HTTP-Referer": strings.TrimSpace(opts.OpenRouterSiteURL),
		},
		httpClient: opts.HTTPClient,
		retry:      retrier{policy: opts.Backoff, maxAttempts: opts.MaxAttempts},
		logger:     opts.Logger.With("component", "provider", "provider", "openrouter"),
	}}
}
