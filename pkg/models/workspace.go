package models

import "time"

// TaskStatus is the state of a task on the board.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status ends a task.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskPriority orders tasks on the board.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Task is a unit of work on a user's board.
type Task struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	AgentID       string         `json:"agentId,omitempty"`
	ParentTaskID  string         `json:"parentTaskId,omitempty"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Priority      TaskPriority   `json:"priority"`
	Column        string         `json:"column,omitempty"`
	Status        TaskStatus     `json:"status"`
	Outcome       string         `json:"outcome,omitempty"`
	OutcomeFileID string         `json:"outcomeFileId,omitempty"`
	AudioID       string         `json:"audioId,omitempty"`
	Workflow      []WorkflowStep `json:"workflow,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// NewTask is the input for creating a task or subtask.
type NewTask struct {
	UserID       string
	AgentID      string
	ParentTaskID string
	Title        string
	Description  string
	Priority     TaskPriority
	Column       string
}

// Skill is an entry on an agent's skill profile.
type Skill struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	AgentID     string    `json:"agentId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Level       string    `json:"level,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	IsPublic    bool      `json:"isPublic"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewSkill is the input for creating a skill.
type NewSkill struct {
	UserID      string
	AgentID     string
	Name        string
	Description string
	Category    string
	Level       string
	IsPublic    bool
}

// SkillUpdate carries the optional fields of a skill edit. Nil leaves the
// stored value unchanged.
type SkillUpdate struct {
	Description *string
	Bio         *string
	Level       *string
	IsPublic    *bool
}

// FeedItem is a post on the user's social feed.
type FeedItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	AgentID   string    `json:"agentId,omitempty"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	MediaID   string    `json:"mediaId,omitempty"`
	IsPublic  bool      `json:"isPublic"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewFeedItem is the input for creating a feed item.
type NewFeedItem struct {
	UserID   string
	AgentID  string
	Kind     string
	Title    string
	Content  string
	MediaID  string
	IsPublic bool
}
