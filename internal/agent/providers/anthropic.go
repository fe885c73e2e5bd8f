package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// AnthropicProvider calls the Messages API. The system prompt travels in the
// dedicated system field; only user and assistant turns go in messages.
type AnthropicProvider struct {
	defaultBaseURL string
	httpClient     *http.Client
	retry          retrier
	logger         *slog.Logger
}

func NewAnthropicProvider(opts Options) *AnthropicProvider {
	opts = opts.withDefaults()
	return &AnthropicProvider{
		defaultBaseURL: opts.baseURL("anthropic", AnthropicBaseURL),
		httpClient:     opts.HTTPClient,
		retry:          retrier{policy: opts.Backoff, maxAttempts: opts.MaxAttempts},
		logger:         opts.Logger.With("component", "provider", "provider", "anthropic"),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Call(ctx context.Context, creds models.ProviderCredentials, model string, messages []models.ChatMessage) (*Response, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, NewProviderError("anthropic", model, errors.New("api key is required")).WithStatus(http.StatusUnauthorized)
	}
	baseURL := p.defaultBaseURL
	if v := strings.TrimSpace(creds.BaseURL); v != "" {
		baseURL = v
	}
	client := anthropic.NewClient(
		option.WithAPIKey(creds.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	)

	system, turns := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: DefaultMaxTokens,
		Messages:  toAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	var msg *anthropic.Message
	err := p.retry.do(ctx, func() error {
		var callErr error
		msg, callErr = client.Messages.New(ctx, params)
		if callErr != nil {
			return wrapAnthropicError(model, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &Response{TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens)}
	if len(msg.Content) > 0 {
		out.Content = strings.TrimSpace(msg.Content[0].Text)
	}
	if out.Content == "" && string(msg.StopReason) == "refusal" {
		out.Content = RefusalPrefix + "."
	}
	return out, nil
}

func toAnthropicMessages(turns []models.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		if m.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == models.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func wrapAnthropicError(model string, err error) error {
	if _, ok := GetProviderError(err); ok {
		return err
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError("anthropic", model, err)
	}

	providerErr := NewProviderError("anthropic", model, err).WithStatus(apiErr.StatusCode)
	providerErr.RequestID = apiErr.RequestID
	raw := apiErr.RawJSON()
	if raw != "" {
		providerErr.Body = raw
		var payload anthropicErrorPayload
		if json.Unmarshal([]byte(raw), &payload) == nil {
			if payload.Error.Message != "" {
				providerErr = providerErr.WithMessage(payload.Error.Message)
			}
			if payload.Error.Type != "" {
				providerErr = providerErr.WithCode(payload.Error.Type)
			}
			if payload.RequestID != "" {
				providerErr = providerErr.WithRequestID(payload.RequestID)
			}
		}
	}
	return providerErr
}
