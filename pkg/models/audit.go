package models

import "time"

// SecurityFlagRecord is one audited scanner match.
type SecurityFlagRecord struct {
	UserID       string    `json:"userId"`
	Source       string    `json:"source"`
	FlagType     string    `json:"flagType"`
	Severity     string    `json:"severity"`
	Pattern      string    `json:"pattern"`
	InputSnippet string    `json:"inputSnippet"`
	Action       string    `json:"action"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AgentActionRecord is one audited pipeline run.
type AgentActionRecord struct {
	UserID         string    `json:"userId"`
	Action         string    `json:"action"`
	Resource       string    `json:"resource"`
	CallerType     string    `json:"callerType"`
	CallerIdentity string    `json:"callerIdentity,omitempty"`
	TokenCount     int       `json:"tokenCount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}
