package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/haasonsaas/agentdesk/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// RefusalPrefix starts the visible reply when the model refuses a request.
const RefusalPrefix = "I'm unable to process that request"

// EmptyReasoningReply replaces an empty reply from a reasoning model that
// spent its whole budget on hidden reasoning.
const EmptyReasoningReply = "I worked through your request but ran out of room before writing a reply. Please try again, or ask for a shorter answer."

var reasoningModel = regexp.MustCompile(`(?i)(^|[/:\-_\s])(o1|o3|o4|gpt-5)`)

// IsReasoningModel reports whether model belongs to a hidden-reasoning family.
func IsReasoningModel(model string) bool {
	return reasoningModel.MatchString(model)
}

// requestVariant adjusts the token-limit fields of a chat request.
type requestVariant struct {
	name  string
	apply func(*openai.ChatCompletionRequest)
}

func reasoningVariants() []requestVariant {
	return []requestVariant{
		{"max_completion_tokens+reasoning_effort", func(r *openai.ChatCompletionRequest) {
			r.MaxCompletionTokens = ReasoningMaxTokens
			r.ReasoningEffort = "low"
		}},
		{"max_completion_tokens", func(r *openai.ChatCompletionRequest) {
			r.MaxCompletionTokens = ReasoningMaxTokens
		}},
		{"bare", func(*openai.ChatCompletionRequest) {}},
	}
}

func standardVariants() []requestVariant {
	return []requestVariant{
		{"max_completion_tokens", func(r *openai.ChatCompletionRequest) {
			r.MaxCompletionTokens = DefaultMaxTokens
		}},
		{"max_tokens", func(r *openai.ChatCompletionRequest) {
			r.MaxTokens = DefaultMaxTokens
		}},
		{"bare", func(*openai.ChatCompletionRequest) {}},
	}
}

// OpenAICompatible speaks the chat-completions API. It serves OpenAI,
// DeepSeek, MiniMax, Kimi and any provider id without a dedicated adapter.
//
// Vendors disagree on which token-limit parameters they accept, so each call
// walks a short list of request shapes and stops at the first one the
// upstream accepts. Auth, rate-limit and server failures end the walk.
type OpenAICompatible struct {
	name           string
	defaultBaseURL string
	httpClient     *http.Client
	retry          retrier
	logger         *slog.Logger
}

// NewOpenAICompatible creates an adapter named name whose default endpoint is baseURL.
func NewOpenAICompatible(name, baseURL string, opts Options) *OpenAICompatible {
	opts = opts.withDefaults()
	return &OpenAICompatible{
		name:           name,
		defaultBaseURL: baseURL,
		httpClient:     opts.HTTPClient,
		retry:          retrier{policy: opts.Backoff, maxAttempts: opts.MaxAttempts},
		logger:         opts.Logger.With("component", "provider", "provider", name),
	}
}

func (p *OpenAICompatible) Name() string { return p.name }

func (p *OpenAICompatible) Call(ctx context.Context, creds models.ProviderCredentials, model string, messages []models.ChatMessage) (*Response, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, NewProviderError(p.name, model, errors.New("api key is required")).WithStatus(http.StatusUnauthorized)
	}
	client := newOpenAIClient(creds, p.defaultBaseURL, p.httpClient, nil)

	reasoning := IsReasoningModel(model)
	variants := standardVariants()
	if reasoning {
		variants = reasoningVariants()
	}

	var lastErr error
	for i, variant := range variants {
		req := openai.ChatCompletionRequest{
			Model:    model,
			Messages: toOpenAIMessages(messages),
		}
		variant.apply(&req)

		var resp openai.ChatCompletionResponse
		err := p.retry.do(ctx, func() error {
			var callErr error
			resp, callErr = client.CreateChatCompletion(ctx, req)
			if callErr != nil {
				return wrapOpenAIError(p.name, model, callErr)
			}
			return nil
		})
		if err == nil {
			if i > 0 {
				p.logger.Debug("request variant accepted", "model", model, "variant", variant.name)
			}
			return p.normalize(model, reasoning, resp), nil
		}
		lastErr = err
		if ctx.Err() != nil || !rejectsShape(err) {
			break
		}
		p.logger.Debug("request variant rejected", "model", model, "variant", variant.name, "error", err)
	}
	return nil, lastErr
}

func (p *OpenAICompatible) normalize(model string, reasoning bool, resp openai.ChatCompletionResponse) *Response {
	out := &Response{TokensUsed: resp.Usage.TotalTokens}
	if len(resp.Choices) == 0 {
		if reasoning {
			out.Content = EmptyReasoningReply
		}
		return out
	}
	choice := resp.Choices[0]
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		out.Content = RefusalPrefix + ": " + refusal
		return out
	}
	out.Content = strings.TrimSpace(messageText(choice.Message))
	if out.Content == "" && reasoning {
		reasoningTokens := 0
		if details := resp.Usage.CompletionTokensDetails; details != nil {
			reasoningTokens = details.ReasoningTokens
		}
		p.logger.Warn("reasoning model returned no visible content",
			"model", model,
			"finish_reason", string(choice.FinishReason),
			"reasoning_tokens", reasoningTokens,
			"completion_tokens", resp.Usage.CompletionTokens)
		out.Content = EmptyReasoningReply
	}
	return out
}

// messageText joins plain or multi-part content.
func messageText(msg openai.ChatCompletionMessage) string {
	if msg.Content != "" {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range msg.MultiContent {
		b.WriteString(part.Text)
	}
	return b.String()
}

func toOpenAIMessages(messages []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func newOpenAIClient(creds models.ProviderCredentials, defaultBaseURL string, httpClient *http.Client, headers map[string]string) *openai.Client {
	cfg := openai.DefaultConfig(creds.APIKey)
	cfg.BaseURL = strings.TrimRight(defaultBaseURL, "/")
	if base := strings.TrimSpace(creds.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	base := transportOf(httpClient)
	if len(headers) > 0 {
		base = &headerTransport{base: base, headers: headers}
	}
	cfg.HTTPClient = withTransport(httpClient, &contentPartsTransport{base: base})
	return openai.NewClientWithConfig(cfg)
}

// contentPartsTransport rewrites bare string entries in a reply's content
// parts array into text part objects, which is the only shape go-openai
// decodes. Bodies that are not a chat completion pass through untouched.
type contentPartsTransport struct {
	base http.RoundTripper
}

func (t *contentPartsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.Body == nil {
		return resp, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	body = normalizeContentParts(body)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Length")
	return resp, nil
}

// normalizeContentParts returns body with choices[].message.content string
// parts wrapped as {"type":"text","text":...}. It returns body unchanged when
// nothing needs rewriting or the payload has another shape.
func normalizeContentParts(body []byte) []byte {
	var envelope map[string]json.RawMessage
	if json.Unmarshal(body, &envelope) != nil {
		return body
	}
	var choices []map[string]json.RawMessage
	if json.Unmarshal(envelope["choices"], &choices) != nil {
		return body
	}
	changed := false
	for _, choice := range choices {
		var message map[string]json.RawMessage
		if json.Unmarshal(choice["message"], &message) != nil {
			continue
		}
		var parts []json.RawMessage
		if json.Unmarshal(message["content"], &parts) != nil {
			continue
		}
		rewrote := false
		for i, part := range parts {
			var text string
			if json.Unmarshal(part, &text) != nil {
				continue
			}
			wrapped, err := json.Marshal(openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
			if err != nil {
				return body
			}
			parts[i] = wrapped
			rewrote = true
		}
		if !rewrote {
			continue
		}
		content, err := json.Marshal(parts)
		if err != nil {
			return body
		}
		message["content"] = content
		if choice["message"], err = json.Marshal(message); err != nil {
			return body
		}
		changed = true
	}
	if !changed {
		return body
	}
	rawChoices, err := json.Marshal(choices)
	if err != nil {
		return body
	}
	envelope["choices"] = rawChoices
	out, err := json.Marshal(envelope)
	if err != nil {
		return body
	}
	return out
}

// wrapOpenAIError converts go-openai failures into ProviderErrors that keep
// the upstream error payload.
func wrapOpenAIError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := NewProviderError(provider, model, err).WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			providerErr.Message = apiErr.Message
		}
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		} else if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		}
		if body, mErr := json.Marshal(map[string]any{"error": apiErr}); mErr == nil {
			providerErr.Body = string(body)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		providerErr := NewProviderError(provider, model, err).WithStatus(reqErr.HTTPStatusCode)
		if len(reqErr.Body) > 0 {
			providerErr.Body = string(reqErr.Body)
		}
		return providerErr
	}

	return NewProviderError(provider, model, err)
}
