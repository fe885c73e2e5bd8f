// Package actions defines the workspace actions a model may request and the
// parser that extracts them from a reply.
package actions

import (
	"encoding/json"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// Type is the discriminator of an action.
type Type string

const (
	TypeCreateTask       Type = "create_task"
	TypeCreateFeedItem   Type = "create_feed_item"
	TypeCreateSkill      Type = "create_skill"
	TypeUpdateTaskStatus Type = "update_task_status"
	TypeMoveTask         Type = "move_task"
	TypeUpdateSkill      Type = "update_skill"
	TypeCreateSubtask    Type = "create_subtask"
	TypeDelegateToAgent  Type = "delegate_to_agent"
	TypeGenerateImage    Type = "generate_image"
	TypeGenerateAudio    Type = "generate_audio"
	TypeCallTool         Type = "call_tool"
)

// Field caps, in runes.
const (
	MaxTaskTitle       = 120
	MaxTaskDescription = 800
	MaxColumn          = 60
	MaxID              = 100
	MaxFeedTitle       = 120
	MaxFeedContent     = 2000
	MaxSkillName       = 80
	MaxSkillDesc       = 500
	MaxSkillCategory   = 60
	MaxBio             = 1200
	MaxOutcomeSummary  = 2000
	MaxAgentSlug       = 64
	MaxDelegateMessage = 4000
	MaxImagePrompt     = 1000
	MaxCaption         = 120
	MaxAudioText       = 4000
	MaxToolName        = 64
)

// Action is implemented only by the variants in this package.
type Action interface {
	Type() Type
	isAction()
}

type CreateTask struct {
	Title       string
	Description string
	Priority    models.TaskPriority
	Column      string
}

type CreateFeedItem struct {
	Title    string
	Content  string
	Kind     string
	IsPublic bool
}

type CreateSkill struct {
	Name        string
	Description string
	Category    string
	Level       string
}

type UpdateTaskStatus struct {
	TaskID         string
	Status         models.TaskStatus
	OutcomeSummary string
}

type MoveTask struct {
	TaskID string
	Column string
}

// UpdateSkill edits an existing skill; nil fields are left unchanged.
type UpdateSkill struct {
	SkillID     string
	Description *string
	Bio         *string
	Level       *string
	IsPublic    *bool
}

type CreateSubtask struct {
	ParentTaskID string
	Description  string
}

type DelegateToAgent struct {
	AgentSlug string
	Message   string
}

type GenerateImage struct {
	Prompt  string
	Caption string
}

type GenerateAudio struct {
	Text   string
	TaskID string
}

type CallTool struct {
	Tool      string
	Arguments json.RawMessage
}

func (CreateTask) Type() Type       { return TypeCreateTask }
func (CreateFeedItem) Type() Type   { return TypeCreateFeedItem }
func (CreateSkill) Type() Type      { return TypeCreateSkill }
func (UpdateTaskStatus) Type() Type { return TypeUpdateTaskStatus }
func (MoveTask) Type() Type         { return TypeMoveTask }
func (UpdateSkill) Type() Type      { return TypeUpdateSkill }
func (CreateSubtask) Type() Type    { return TypeCreateSubtask }
func (DelegateToAgent) Type() Type  { return TypeDelegateToAgent }
func (GenerateImage) Type() Type    { return TypeGenerateImage }
func (GenerateAudio) Type() Type    { return TypeGenerateAudio }
func (CallTool) Type() Type         { return TypeCallTool }

func (CreateTask) isAction()       {}
func (CreateFeedItem) isAction()   {}
func (CreateSkill) isAction()      {}
func (UpdateTaskStatus) isAction() {}
func (MoveTask) isAction()         {}
func (UpdateSkill) isAction()      {}
func (CreateSubtask) isAction()    {}
func (DelegateToAgent) isAction()  {}
func (GenerateImage) isAction()    {}
func (GenerateAudio) isAction()    {}
func (CallTool) isAction()         {}
