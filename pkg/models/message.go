// Package models defines the core data types shared across agentdesk.
package models

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a provider conversation. Order matters: the
// system prompt comes first, then chronological context, then the current
// user turn.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Channel identifies where a message entered the platform.
type Channel string

const (
	ChannelAPI       Channel = "api"
	ChannelEmail     Channel = "email"
	ChannelPhone     Channel = "phone"
	ChannelMCP       Channel = "mcp"
	ChannelA2A       Channel = "a2a"
	ChannelDashboard Channel = "dashboard"
)

// ExternalChannels are the channels callers may name directly. ChannelA2A is
// reserved for delegated runs started by the pipeline itself.
var ExternalChannels = []Channel{
	ChannelAPI,
	ChannelEmail,
	ChannelPhone,
	ChannelMCP,
	ChannelDashboard,
}

// IsExternal reports whether c may be supplied by a channel adapter.
func (c Channel) IsExternal() bool {
	for _, allowed := range ExternalChannels {
		if c == allowed {
			return true
		}
	}
	return false
}

// ProcessResult is the externally visible outcome of one pipeline run.
type ProcessResult struct {
	Response      string   `json:"response"`
	TokensUsed    int      `json:"tokensUsed"`
	Blocked       bool     `json:"blocked"`
	SecurityFlags []string `json:"securityFlags"`
}
