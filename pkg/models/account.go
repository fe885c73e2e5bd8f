package models

import "time"

// User holds the owner-level defaults every agent inherits.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	AgentName    string    `json:"agentName"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Capabilities []string  `json:"capabilities"`
	Restrictions []string  `json:"restrictions,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Agent is a named agent owned by a user. Empty fields fall back to the
// owner's defaults.
type Agent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	SystemPrompt string    `json:"systemPrompt,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Restrictions []string  `json:"restrictions,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Media is a generated image or audio clip kept in the blob store.
type Media struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	AgentID     string    `json:"agentId,omitempty"`
	Kind        string    `json:"kind"`
	BlobKey     string    `json:"blobKey"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}
