package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/agentdesk/internal/agent/providers"
	"github.com/haasonsaas/agentdesk/internal/observability"
	"github.com/haasonsaas/agentdesk/internal/prompt"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// relevantMemoriesHeader opens the semantic-memory section of the system message.
const relevantMemoriesHeader = "Relevant memories from earlier conversations:"

type builtContext struct {
	messages  []models.ChatMessage
	embedding []float32
	semantic  int
}

// buildContext assembles the provider conversation: one system message, the
// recent window in chronological order, then the current input.
func (p *Processor) buildContext(ctx context.Context, req Request, cfg *models.AgentConfig, input string) builtContext {
	system := prompt.Build(prompt.Input{
		AgentName:          cfg.AgentName,
		OwnerName:          cfg.OwnerName,
		Capabilities:       cfg.Capabilities,
		Restrictions:       cfg.Restrictions,
		CustomInstructions: cfg.SystemPrompt,
		Now:                p.now(),
	})

	var recent []models.ChatMessage
	p.optional(ctx, req, "recent_context", func(ctx context.Context) error {
		var err error
		recent, err = p.deps.Memory.LoadRecentContext(ctx, req.UserID, req.AgentID, p.opts.RecentContextMessages)
		return err
	})
	recent = conversational(recent)

	out := builtContext{embedding: p.embed(ctx, req, input)}
	related := p.semanticContext(ctx, req, out.embedding, recent)
	out.semantic = len(related)
	if len(related) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n\n")
		b.WriteString(relevantMemoriesHeader)
		for _, m := range related {
			fmt.Fprintf(&b, "\n- [%s] %s", m.Role, m.Content)
		}
		system = b.String()
	}

	out.messages = make([]models.ChatMessage, 0, len(recent)+2)
	out.messages = append(out.messages, models.ChatMessage{Role: models.RoleSystem, Content: system})
	out.messages = append(out.messages, recent...)
	out.messages = append(out.messages, models.ChatMessage{Role: models.RoleUser, Content: input})
	return out
}

// semanticContext retrieves related memories not already in the recent window.
func (p *Processor) semanticContext(ctx context.Context, req Request, embedding []float32, recent []models.ChatMessage) []models.ChatMessage {
	if len(embedding) == 0 {
		return nil
	}
	var ids []string
	ok := p.optional(ctx, req, "vector_search", func(ctx context.Context) error {
		var err error
		ids, err = p.deps.Memory.VectorSearchMemory(ctx, req.UserID, embedding, p.opts.SemanticContextLimit)
		return err
	})
	if !ok || len(ids) == 0 {
		return nil
	}
	var memories []models.ChatMessage
	if !p.optional(ctx, req, "vector_search", func(ctx context.Context) error {
		var err error
		memories, err = p.deps.Memory.GetMemoriesByIDs(ctx, ids)
		return err
	}) {
		return nil
	}

	seen := make(map[string]bool, len(recent))
	for _, m := range recent {
		seen[m.Content] = true
	}
	related := make([]models.ChatMessage, 0, len(memories))
	for _, m := range memories {
		content := strings.TrimSpace(m.Content)
		if content == "" || seen[m.Content] {
			continue
		}
		seen[m.Content] = true
		related = append(related, m)
		if len(related) == p.opts.SemanticContextLimit {
			break
		}
	}
	return related
}

// embed computes a best-effort embedding of text. It returns nil when no
// embedder or credentials are configured, or when the call fails.
func (p *Processor) embed(ctx context.Context, req Request, text string) []float32 {
	if p.deps.Embedder == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	var vector []float32
	p.optional(ctx, req, "embedding", func(ctx context.Context) error {
		creds, err := p.deps.Config.GetEmbeddingCredentials(ctx, req.UserID)
		if err != nil || creds == nil {
			return err
		}
		vector, err = p.deps.Embedder.Embed(ctx, *creds, text)
		return err
	})
	return vector
}

// callProvider runs the provider call under the provider timeout.
func (p *Processor) callProvider(ctx context.Context, cfg *models.AgentConfig, creds models.ProviderCredentials, messages []models.ChatMessage) (*providers.Response, error) {
	provider := p.deps.Providers.Resolve(cfg.Provider)
	if provider == nil {
		return nil, providers.NewProviderError(cfg.Provider, cfg.Model, fmt.Errorf("no adapter for provider %q", cfg.Provider))
	}

	ctx, span := p.deps.Tracer.TraceLLMRequest(ctx, provider.Name(), cfg.Model)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	resp, err := provider.Call(ctx, creds, cfg.Model, messages)
	if err == nil && resp == nil {
		err = providers.NewProviderError(provider.Name(), cfg.Model, fmt.Errorf("empty response"))
	}
	if err != nil {
		if ctx.Err() != nil {
			if _, ok := providers.GetProviderError(err); !ok {
				err = providers.NewProviderError(provider.Name(), cfg.Model, err)
			}
		}
		observability.RecordError(span, err)
		p.deps.Metrics.LLMRequest(provider.Name(), cfg.Model, "error", time.Since(start), 0)
		return nil, err
	}
	p.deps.Metrics.LLMRequest(provider.Name(), cfg.Model, "success", time.Since(start), resp.TokensUsed)
	return resp, nil
}

// conversational drops system turns and empty turns from stored context.
func conversational(msgs []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleSystem || strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
