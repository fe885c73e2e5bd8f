// Package audit streams security flags and agent actions to a structured
// audit log and forwards them to a persistent recorder off the request path.
package audit

import (
	"context"
	"time"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// EventType categorizes audit events.
type EventType string

const (
	EventSecurityFlag EventType = "security.flag"
	EventAgentAction  EventType = "agent.action"
)

// Event is one queued audit entry. Exactly one of Flag and Action is set.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	TraceID   string
	SpanID    string
	Flag      *models.SecurityFlagRecord
	Action    *models.AgentActionRecord
}

// Format selects the stream encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config configures the audit logger.
type Config struct {
	// Enabled toggles the audit stream. Records still reach the recorder
	// when the stream is off.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Output is "stdout", "stderr" or "file:<path>".
	// Default: "stdout"
	Output string `yaml:"output" json:"output"`

	// Format is json or text.
	// Default: json
	Format Format `yaml:"format" json:"format"`

	// BufferSize is the queue length before writes turn synchronous.
	// Default: 1000
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`

	// HashSnippets replaces input snippets in the stream with their SHA-256.
	HashSnippets bool `yaml:"hash_snippets" json:"hash_snippets"`

	// PersistTimeout bounds each recorder call.
	// Default: 5s
	PersistTimeout time.Duration `yaml:"persist_timeout" json:"persist_timeout"`
}

// Recorder persists audit records.
type Recorder interface {
	LogSecurityFlag(ctx context.Context, rec models.SecurityFlagRecord) error
	LogAgentAction(ctx context.Context, rec models.AgentActionRecord) error
}
