package models

// AgentConfig is the per-request projection of user defaults overridden by
// agent-level settings. It is never persisted as its own entity.
type AgentConfig struct {
	AgentID      string   `json:"agentId,omitempty"`
	AgentName    string   `json:"agentName"`
	OwnerName    string   `json:"ownerName"`
	Provider     string   `json:"provider"`
	Model        string   `json:"model"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Capabilities []string `json:"capabilities"`
	Restrictions []string `json:"restrictions,omitempty"`
}

// AgentRef identifies an agent resolvable by slug within one owner.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ProviderCredentials holds the decoded BYOK key for one (user, provider) pair.
type ProviderCredentials struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// EmbeddingCredentials configures the embedding endpoint for one user.
type EmbeddingCredentials struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model"`
}
