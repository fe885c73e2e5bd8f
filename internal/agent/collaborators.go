package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/agentdesk/internal/agent/providers"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// ConfigStore resolves agent configuration and credentials. Lookups return
// nil and no error when nothing is configured.
type ConfigStore interface {
	GetAgentConfig(ctx context.Context, userID, agentID string) (*models.AgentConfig, error)
	GetProviderCredentials(ctx context.Context, userID, provider string) (*models.ProviderCredentials, error)
	GetEmbeddingCredentials(ctx context.Context, userID string) (*models.EmbeddingCredentials, error)
	LookupAgentBySlug(ctx context.Context, userID, slug string) (*models.AgentRef, error)
}

// MemoryStore persists conversation memory and thoughts.
type MemoryStore interface {
	// LoadRecentContext returns up to max recent turns in chronological order.
	LoadRecentContext(ctx context.Context, userID, agentID string, max int) ([]models.ChatMessage, error)
	// VectorSearchMemory returns memory ids ordered by similarity.
	VectorSearchMemory(ctx context.Context, userID string, embedding []float32, limit int) ([]string, error)
	GetMemoriesByIDs(ctx context.Context, ids []string) ([]models.ChatMessage, error)
	SaveMemory(ctx context.Context, entry models.MemoryEntry) (string, error)
	SaveThought(ctx context.Context, thought models.Thought) (string, error)
}

// Workspace mutates the user's task board, skill profile and feed.
type Workspace interface {
	CreateTask(ctx context.Context, in models.NewTask) (*models.Task, error)
	// UpdateTaskStatus sets status; an empty outcome leaves the stored outcome unchanged.
	UpdateTaskStatus(ctx context.Context, userID, taskID string, status models.TaskStatus, outcome string) error
	MoveTask(ctx context.Context, userID, taskID, column string) error
	CreateSkill(ctx context.Context, in models.NewSkill) (*models.Skill, error)
	UpdateSkill(ctx context.Context, userID, skillID string, update models.SkillUpdate) error
	CreateFeedItem(ctx context.Context, in models.NewFeedItem) (*models.FeedItem, error)
	// StoreOutcomeFile saves a long-form outcome and attaches it to the task.
	StoreOutcomeFile(ctx context.Context, userID, taskID, content string) (string, error)
	LinkOutcomeAudio(ctx context.Context, userID, taskID, audioID string) error
	AttachWorkflowSteps(ctx context.Context, userID, taskID string, steps []models.WorkflowStep) error
}

// AuditSink records security flags and agent actions.
type AuditSink interface {
	LogSecurityFlag(ctx context.Context, rec models.SecurityFlagRecord) error
	LogAgentAction(ctx context.Context, rec models.AgentActionRecord) error
}

// ProviderResolver maps a provider id to its adapter. *providers.Registry
// satisfies it.
type ProviderResolver interface {
	Resolve(name string) providers.ChatProvider
}

// SpeechSynthesizer renders text to audio and returns the stored media id.
// An empty id means nothing was produced.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, userID, agentID, text string) (string, error)
}

// ImageGenerator renders a prompt to an image and returns the stored media id.
type ImageGenerator interface {
	Generate(ctx context.Context, userID, agentID, prompt string) (string, error)
}

// ToolRunner executes a named tool with JSON arguments.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (string, error)
}

var _ ProviderResolver = (*providers.Registry)(nil)
