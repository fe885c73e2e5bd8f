// Package agent runs the message-processing pipeline: input screening,
// context assembly, the provider call, reply parsing and action dispatch.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/agentdesk/internal/actions"
	"github.com/haasonsaas/agentdesk/internal/memory/embeddings"
	"github.com/haasonsaas/agentdesk/internal/observability"
	"github.com/haasonsaas/agentdesk/internal/security"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// Fixed replies.
const (
	BlockedReply          = "I can't process that message because it looks like an attempt to override my instructions or move data somewhere it shouldn't go. Please rephrase your request."
	ConfigMissingReply    = "Your agent isn't set up yet. Choose an AI provider and model in your agent settings, then try again."
	CredentialsMissingFmt = "No API key is configured for %s. Add your key in your provider settings, then try again."
	EmptyMessageReply     = "Send me a message and I'll get to work."
	WorkspaceUpdatedReply = "I've updated your workspace."
	GenericFailureReply   = "Something went wrong while processing your message. Please try again in a moment."
)

// Audit values for agent actions.
const (
	auditActionProcess = "process_message"
	auditStatusSuccess = "success"
	auditStatusError   = "error"
	defaultResource    = "default_agent"
	snippetLength      = 200
)

// Options tunes the pipeline.
type Options struct {
	// RecentContextMessages bounds the recent-memory window.
	RecentContextMessages int

	// SemanticContextLimit bounds vector-retrieved memories.
	SemanticContextLimit int

	// MaxDelegationDepth bounds nested agent-to-agent runs.
	MaxDelegationDepth int

	// ProviderTimeout applies to every provider call.
	ProviderTimeout time.Duration

	// OptionalTimeout applies to every best-effort call.
	OptionalTimeout time.Duration
}

// DefaultOptions returns the baseline pipeline options.
func DefaultOptions() Options {
	return Options{
		RecentContextMessages: 20,
		SemanticContextLimit:  8,
		MaxDelegationDepth:    3,
		ProviderTimeout:       90 * time.Second,
		OptionalTimeout:       20 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RecentContextMessages <= 0 {
		o.RecentContextMessages = d.RecentContextMessages
	}
	if o.SemanticContextLimit <= 0 {
		o.SemanticContextLimit = d.SemanticContextLimit
	}
	if o.MaxDelegationDepth <= 0 {
		o.MaxDelegationDepth = d.MaxDelegationDepth
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = d.ProviderTimeout
	}
	if o.OptionalTimeout <= 0 {
		o.OptionalTimeout = d.OptionalTimeout
	}
	return o
}

// Deps are the collaborators of the pipeline. Config, Memory, Workspace,
// Audit and Providers are required; the rest may be nil.
type Deps struct {
	Config    ConfigStore
	Memory    MemoryStore
	Workspace Workspace
	Audit     AuditSink
	Providers ProviderResolver

	Embedder embeddings.Embedder
	Speech   SpeechSynthesizer
	Images   ImageGenerator
	Tools    ToolRunner

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Logger  *slog.Logger
	Now     func() time.Time
}

// Request is one inbound message.
type Request struct {
	UserID   string
	AgentID  string
	Message  string
	Channel  models.Channel
	CallerID string
}

// Processor runs the pipeline. It holds no per-run state and is safe for
// concurrent use.
type Processor struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor validates deps and returns a Processor.
func NewProcessor(deps Deps, opts Options) (*Processor, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("agent: config store is required")
	case deps.Memory == nil:
		return nil, errors.New("agent: memory store is required")
	case deps.Workspace == nil:
		return nil, errors.New("agent: workspace is required")
	case deps.Audit == nil:
		return nil, errors.New("agent: audit sink is required")
	case deps.Providers == nil:
		return nil, errors.New("agent: provider resolver is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "agent"),
		now:    now,
	}, nil
}

// ProcessMessage runs one message through the pipeline. It always returns a
// well-formed result; failures are translated into reply text.
func (p *Processor) ProcessMessage(ctx context.Context, req Request) (result *models.ProcessResult) {
	if req.Channel == "" {
		req.Channel = models.ChannelAPI
	}
	ctx, span := p.deps.Tracer.TraceMessage(ctx, req.AgentID, string(req.Channel))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			observability.RecordError(span, err)
			p.logger.Error("pipeline panicked", "user_id", req.UserID, "agent_id", req.AgentID, "error", err)
			p.deps.Metrics.MessageProcessed(string(req.Channel), "error")
			result = newResult(GenericFailureReply)
		}
	}()

	return p.process(ctx, req)
}

func (p *Processor) process(ctx context.Context, req Request) *models.ProcessResult {
	flow := newWorkflow(p.now)
	channel := string(req.Channel)

	if strings.TrimSpace(req.Message) == "" {
		return newResult(EmptyMessageReply)
	}

	step := flow.begin(stageScan)
	scan := security.Scan(req.Message)
	flagTypes := scan.FlagTypes()
	p.recordFlags(ctx, req, scan)
	if scan.Blocked() {
		flow.fail(step, "blocked")
		p.logger.Warn("input blocked",
			"user_id", req.UserID,
			"agent_id", req.AgentID,
			"channel", channel,
			"patterns", flagPatterns(scan.Flags))
		p.deps.Metrics.MessageProcessed(channel, "blocked")
		res := newResult(BlockedReply)
		res.Blocked = true
		res.SecurityFlags = flagTypes
		return res
	}
	flow.complete(step, string(scan.Severity))
	input := scan.SanitizedInput

	step = flow.begin(stageConfig)
	cfg, err := p.deps.Config.GetAgentConfig(ctx, req.UserID, req.AgentID)
	if err != nil {
		p.logger.Error("load agent config failed", "user_id", req.UserID, "agent_id", req.AgentID, "error", err)
	}
	if cfg == nil {
		p.deps.Metrics.MessageProcessed(channel, "unconfigured")
		return withFlags(newResult(ConfigMissingReply), flagTypes)
	}
	creds, err := p.deps.Config.GetProviderCredentials(ctx, req.UserID, cfg.Provider)
	if err != nil {
		p.logger.Error("load provider credentials failed", "user_id", req.UserID, "provider", cfg.Provider, "error", err)
	}
	if creds == nil || strings.TrimSpace(creds.APIKey) == "" {
		p.deps.Metrics.MessageProcessed(channel, "unconfigured")
		return withFlags(newResult(fmt.Sprintf(CredentialsMissingFmt, providerLabel(cfg.Provider))), flagTypes)
	}
	flow.complete(step, cfg.Provider+"/"+cfg.Model)

	step = flow.begin(stageContext)
	built := p.buildContext(ctx, req, cfg, input)
	flow.complete(step, fmt.Sprintf("%d messages, %d related memories", len(built.messages), built.semantic))

	step = flow.begin(stageProvider)
	resp, err := p.callProvider(ctx, cfg, *creds, built.messages)
	if err != nil {
		flow.fail(step, err.Error())
		p.logger.Error("provider call failed",
			"user_id", req.UserID,
			"agent_id", req.AgentID,
			"provider", cfg.Provider,
			"model", cfg.Model,
			"error", err)
		p.auditRun(ctx, req, 0, auditStatusError)
		p.deps.Metrics.MessageProcessed(channel, "error")
		return withFlags(newResult(Diagnose(cfg.Provider, cfg.Model, err)), flagTypes)
	}
	flow.complete(step, fmt.Sprintf("%d tokens", resp.TokensUsed))

	step = flow.begin(stageParse)
	parsed := actions.Parse(resp.Content)
	flow.complete(step, fmt.Sprintf("%d actions, %d dropped", len(parsed.Actions), parsed.Dropped))
	if parsed.Dropped > 0 {
		p.logger.Debug("dropped malformed actions", "user_id", req.UserID, "count", parsed.Dropped)
	}

	if parsed.Thinking != nil {
		step = flow.begin(stageThinking)
		saved := p.optional(ctx, req, "thinking", func(ctx context.Context) error {
			_, err := p.deps.Memory.SaveThought(ctx, models.Thought{
				UserID:  req.UserID,
				AgentID: req.AgentID,
				Type:    models.ThoughtReasoning,
				Content: *parsed.Thinking,
				Context: truncateRunes(input, snippetLength),
			})
			return err
		})
		if saved {
			flow.complete(step, "")
		} else {
			flow.fail(step, "not saved")
		}
	} else {
		flow.skip(stageThinking, "no thinking block")
	}

	reply := parsed.CleanResponse
	var touched []string
	if len(parsed.Actions) == 0 {
		flow.skip(stageDispatch, "no actions")
	} else {
		step = flow.begin(stageDispatch)
		agentID := req.AgentID
		if cfg.AgentID != "" {
			agentID = cfg.AgentID
		}
		d := &dispatcher{p: p, req: req, agentID: agentID, reply: reply}
		d.run(ctx, parsed.Actions)
		touched = d.touched
		flow.complete(step, fmt.Sprintf("%d ok, %d failed", d.succeeded, d.failed))
		if reply == "" {
			reply = WorkspaceUpdatedReply
		}
		for _, extra := range d.delegated {
			reply += "\n\n" + extra
		}
		reply = strings.TrimSpace(reply)
	}

	step = flow.begin(stageMemory)
	p.persistMemory(ctx, req, input, built.embedding, reply)
	flow.complete(step, "")

	p.auditRun(ctx, req, resp.TokensUsed, auditStatusSuccess)

	if len(touched) > 0 {
		steps := flow.snapshot()
		for _, taskID := range touched {
			p.optional(ctx, req, "workflow", func(ctx context.Context) error {
				return p.deps.Workspace.AttachWorkflowSteps(ctx, req.UserID, taskID, steps)
			})
		}
	}

	p.deps.Metrics.MessageProcessed(channel, "ok")
	return &models.ProcessResult{
		Response:      reply,
		TokensUsed:    resp.TokensUsed,
		SecurityFlags: flagTypes,
	}
}

// recordFlags writes one audit entry per matched pattern.
func (p *Processor) recordFlags(ctx context.Context, req Request, scan security.ScanResult) {
	action := "sanitized"
	if scan.Blocked() {
		action = "blocked"
	}
	for _, flag := range scan.Flags {
		p.deps.Metrics.SecurityFlag(string(flag.Type), string(flag.Severity))
		err := p.deps.Audit.LogSecurityFlag(ctx, models.SecurityFlagRecord{
			UserID:       req.UserID,
			Source:       string(req.Channel),
			FlagType:     string(flag.Type),
			Severity:     string(flag.Severity),
			Pattern:      flag.Pattern,
			InputSnippet: truncateRunes(scan.SanitizedInput, snippetLength),
			Action:       action,
			CreatedAt:    p.now(),
		})
		if err != nil {
			p.logger.Warn("log security flag failed", "user_id", req.UserID, "pattern", flag.Pattern, "error", err)
		}
	}
}

func (p *Processor) auditRun(ctx context.Context, req Request, tokens int, status string) {
	resource := req.AgentID
	if resource == "" {
		resource = defaultResource
	}
	err := p.deps.Audit.LogAgentAction(ctx, models.AgentActionRecord{
		UserID:         req.UserID,
		Action:         auditActionProcess,
		Resource:       resource,
		CallerType:     string(req.Channel),
		CallerIdentity: req.CallerID,
		TokenCount:     tokens,
		Status:         status,
		CreatedAt:      p.now(),
	})
	if err != nil {
		p.logger.Warn("log agent action failed", "user_id", req.UserID, "error", err)
	}
}

// optional runs fn under the optional timeout. Failures are logged and counted.
func (p *Processor) optional(ctx context.Context, req Request, stage string, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, p.opts.OptionalTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		p.logger.Warn("optional stage failed",
			"stage", stage,
			"user_id", req.UserID,
			"agent_id", req.AgentID,
			"error", err)
		p.deps.Metrics.OptionalFailure(stage)
		return false
	}
	return true
}

func (p *Processor) persistMemory(ctx context.Context, req Request, input string, inputEmbedding []float32, reply string) {
	metadata := map[string]any{"channel": string(req.Channel)}
	if req.CallerID != "" {
		metadata["caller_id"] = req.CallerID
	}
	p.optional(ctx, req, "memory", func(ctx context.Context) error {
		_, err := p.deps.Memory.SaveMemory(ctx, models.MemoryEntry{
			UserID:    req.UserID,
			AgentID:   req.AgentID,
			Type:      models.MemoryUserMessage,
			Content:   input,
			Source:    string(req.Channel),
			Embedding: inputEmbedding,
			Metadata:  metadata,
			CreatedAt: p.now(),
		})
		return err
	})
	if reply == "" {
		return
	}
	replyEmbedding := p.embed(ctx, req, reply)
	p.optional(ctx, req, "memory", func(ctx context.Context) error {
		_, err := p.deps.Memory.SaveMemory(ctx, models.MemoryEntry{
			UserID:    req.UserID,
			AgentID:   req.AgentID,
			Type:      models.MemoryAssistantMessage,
			Content:   reply,
			Source:    string(req.Channel),
			Embedding: replyEmbedding,
			Metadata:  metadata,
			CreatedAt: p.now(),
		})
		return err
	})
}

func newResult(response string) *models.ProcessResult {
	return &models.ProcessResult{Response: response, SecurityFlags: []string{}}
}

func withFlags(res *models.ProcessResult, flags []string) *models.ProcessResult {
	if len(flags) > 0 {
		res.SecurityFlags = flags
	}
	return res
}

func flagPatterns(flags []security.Flag) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		out = append(out, f.Pattern)
	}
	return out
}

func providerLabel(provider string) string {
	if strings.TrimSpace(provider) == "" {
		return "your AI provider"
	}
	return provider
}
