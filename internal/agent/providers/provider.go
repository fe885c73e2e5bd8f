// Package providers adapts vendor chat APIs to a single request/response
// shape. Each adapter receives the caller's own credentials per call.
package providers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/haasonsaas/agentdesk/internal/backoff"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// DefaultMaxTokens is the output budget of non-reasoning requests.
const DefaultMaxTokens = 2048

// ReasoningMaxTokens is the output budget of reasoning-model requests.
const ReasoningMaxTokens = 16384

// Response is the normalized result of one chat call.
type Response struct {
	Content    string
	TokensUsed int
}

// ChatProvider sends one conversation to a vendor and returns the reply.
// Messages are ordered: optional system prompt first, then chronological turns.
type ChatProvider interface {
	Name() string
	Call(ctx context.Context, creds models.ProviderCredentials, model string, messages []models.ChatMessage) (*Response, error)
}

// Options configure every adapter built by NewRegistry.
type Options struct {
	// BaseURLs overrides default endpoints by provider id.
	BaseURLs map[string]string
	// OpenRouter attribution shown on the OpenRouter dashboard.
	OpenRouterAppName string
	OpenRouterSiteURL string
	// HTTPClient is shared by adapters; nil uses http.DefaultClient.
	HTTPClient *http.Client
	// MaxAttempts bounds transient-failure retries per request (default 3).
	MaxAttempts int
	Backoff     backoff.Policy
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff == (backoff.Policy{}) {
		o.Backoff = backoff.DefaultPolicy()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options) baseURL(provider, fallback string) string {
	if v := strings.TrimSpace(o.BaseURLs[provider]); v != "" {
		return v
	}
	return fallback
}

// retrier runs an upstream call with transient-failure retries.
type retrier struct {
	policy      backoff.Policy
	maxAttempts int
}

func (r retrier) do(ctx context.Context, fn func() error) error {
	return backoff.Do(ctx, r.policy, r.maxAttempts, IsRetryable, func(int) error {
		return fn()
	})
}

// Default endpoints of the OpenAI-compatible vendors.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	DeepSeekBaseURL   = "https://api.deepseek.com/v1"
	MiniMaxBaseURL    = "https://api.minimax.io/v1"
	KimiBaseURL       = "https://api.moonshot.ai/v1"
	MistralBaseURL    = "https://api.mistral.ai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	AnthropicBaseURL  = "https://api.anthropic.com/"
	GeminiBaseURL     = "https://generativelanguage.googleapis.com/"
)

// Registry maps provider ids to adapters. Unknown ids resolve to the
// generic OpenAI-compatible adapter.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ChatProvider
	fallback  ChatProvider
}

// NewRegistry builds the default adapter set.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	openaiProvider := NewOpenAICompatible("openai", opts.baseURL("openai", OpenAIBaseURL), opts)

	r := &Registry{
		providers: make(map[string]ChatProvider),
		fallback:  openaiProvider,
	}
	r.Register(openaiProvider)
	r.Register(NewOpenAICompatible("deepseek", opts.baseURL("deepseek", DeepSeekBaseURL), opts))
	r.Register(NewOpenAICompatible("minimax", opts.baseURL("minimax", MiniMaxBaseURL), opts))
	kimi := NewOpenAICompatible("kimi", opts.baseURL("kimi", KimiBaseURL), opts)
	r.Register(kimi)
	r.alias("moonshot", kimi)
	r.Register(NewAnthropicProvider(opts))
	gemini := NewGeminiProvider(opts)
	r.Register(gemini)
	r.alias("google", gemini)
	r.Register(NewMistralProvider(opts))
	r.Register(NewOpenRouterProvider(opts))
	return r
}

// Register adds or replaces an adapter under its Name.
func (r *Registry) Register(p ChatProvider) {
	r.alias(p.Name(), p)
}

func (r *Registry) alias(name string, p ChatProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(name)] = p
}

// Resolve returns the adapter for name, or the fallback adapter.
func (r *Registry) Resolve(name string) ChatProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return r.fallback
}

// Known reports whether name has a dedicated adapter.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// splitSystem separates the system prompt from the conversation turns.
// Multiple system messages are joined in order.
func splitSystem(messages []models.ChatMessage) (string, []models.ChatMessage) {
	var system []string
	turns := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// headerTransport sets fixed headers on every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}

func transportOf(c *http.Client) http.RoundTripper {
	if c != nil && c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

// withTransport returns a copy of c using rt.
func withTransport(c *http.Client, rt http.RoundTripper) *http.Client {
	clone := &http.Client{Transport: rt}
	if c != nil {
		clone.Timeout = c.Timeout
		clone.CheckRedirect = c.CheckRedirect
		clone.Jar = c.Jar
	}
	return clone
}
