package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/haasonsaas/agentdesk/internal/actions"
	"github.com/haasonsaas/agentdesk/internal/observability"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

var (
	errImagesDisabled = errors.New("image generation is not configured")
	errSpeechDisabled = errors.New("speech synthesis is not configured")
	errToolsDisabled  = errors.New("tools are not configured")
)

const (
	defaultImageTitle = "Generated image"
	defaultAudioTitle = "Audio update"
)

// dispatcher executes the actions of one reply, in order. Each action is
// isolated: its failure is logged and the next action still runs.
type dispatcher struct {
	p       *Processor
	req     Request
	agentID string // the config's AgentID when set, else req.AgentID
	reply   string

	touched   []string
	delegated []string
	succeeded int
	failed    int
}

func (d *dispatcher) run(ctx context.Context, list []actions.Action) {
	for _, action := range list {
		kind := string(action.Type())
		if err := d.dispatchOne(ctx, action); err != nil {
			d.failed++
			d.p.deps.Metrics.ActionDispatched(kind, "error")
			d.p.logger.Warn("action failed",
				"action", kind,
				"user_id", d.req.UserID,
				"agent_id", d.req.AgentID,
				"error", err)
			continue
		}
		d.succeeded++
		d.p.deps.Metrics.ActionDispatched(kind, "ok")
	}
}

func (d *dispatcher) dispatchOne(ctx context.Context, action actions.Action) (err error) {
	ctx, span := d.p.deps.Tracer.TraceAction(ctx, string(action.Type()))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		observability.RecordError(span, err)
	}()

	// Delegation runs a full pipeline with its own timeouts.
	if a, ok := action.(actions.DelegateToAgent); ok {
		reply, err := d.delegate(ctx, a)
		if reply != "" {
			d.delegated = append(d.delegated, reply)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.p.opts.OptionalTimeout)
	defer cancel()
	return d.apply(ctx, action)
}

func (d *dispatcher) apply(ctx context.Context, action actions.Action) error {
	ws := d.p.deps.Workspace
	userID, agentID := d.req.UserID, d.req.AgentID

	switch a := action.(type) {
	case actions.CreateTask:
		_, err := ws.CreateTask(ctx, models.NewTask{
			UserID:      userID,
			AgentID:     agentID,
			Title:       taskTitle(a.Title, a.Description),
			Description: a.Description,
			Priority:    a.Priority,
			Column:      a.Column,
		})
		return err

	case actions.CreateSubtask:
		_, err := ws.CreateTask(ctx, models.NewTask{
			UserID:       userID,
			AgentID:      agentID,
			ParentTaskID: a.ParentTaskID,
			Title:        taskTitle("", a.Description),
			Description:  a.Description,
			Priority:     models.PriorityMedium,
		})
		return err

	case actions.CreateFeedItem:
		_, err := ws.CreateFeedItem(ctx, models.NewFeedItem{
			UserID:   userID,
			AgentID:  agentID,
			Kind:     a.Kind,
			Title:    a.Title,
			Content:  a.Content,
			IsPublic: a.IsPublic,
		})
		return err

	case actions.CreateSkill:
		_, err := ws.CreateSkill(ctx, models.NewSkill{
			UserID:      userID,
			AgentID:     agentID,
			Name:        a.Name,
			Description: a.Description,
			Category:    a.Category,
			Level:       a.Level,
		})
		return err

	case actions.UpdateSkill:
		return ws.UpdateSkill(ctx, userID, a.SkillID, models.SkillUpdate{
			Description: a.Description,
			Bio:         a.Bio,
			Level:       a.Level,
			IsPublic:    a.IsPublic,
		})

	case actions.UpdateTaskStatus:
		return d.updateStatus(ctx, a)

	case actions.MoveTask:
		if err := ws.MoveTask(ctx, userID, a.TaskID, a.Column); err != nil {
			return err
		}
		d.touch(a.TaskID)
		return nil

	case actions.GenerateImage:
		return d.generateImage(ctx, a)

	case actions.GenerateAudio:
		return d.generateAudio(ctx, a)

	case actions.CallTool:
		return d.callTool(ctx, a)
	}
	return fmt.Errorf("unsupported action %s", action.Type())
}

func (d *dispatcher) updateStatus(ctx context.Context, a actions.UpdateTaskStatus) error {
	ws := d.p.deps.Workspace
	outcome := ""
	if a.Status.Terminal() {
		outcome = selectOutcome(d.reply, a.OutcomeSummary, a.Status)
	}
	long := overflows(outcome)
	if long {
		outcome = truncateRunes(outcome, MaxInlineOutcome)
	}
	if err := ws.UpdateTaskStatus(ctx, d.req.UserID, a.TaskID, a.Status, outcome); err != nil {
		return err
	}
	d.touch(a.TaskID)

	if long {
		d.p.optional(ctx, d.req, "outcome_file", func(ctx context.Context) error {
			_, err := ws.StoreOutcomeFile(ctx, d.req.UserID, a.TaskID, d.reply)
			return err
		})
	}
	return nil
}

func (d *dispatcher) generateImage(ctx context.Context, a actions.GenerateImage) error {
	if d.p.deps.Images == nil {
		return errImagesDisabled
	}
	mediaID, err := d.p.deps.Images.Generate(ctx, d.req.UserID, d.req.AgentID, a.Prompt)
	if err != nil {
		return fmt.Errorf("generate image: %w", err)
	}
	title := a.Caption
	if title == "" {
		title = defaultImageTitle
	}
	_, err = d.p.deps.Workspace.CreateFeedItem(ctx, models.NewFeedItem{
		UserID:  d.req.UserID,
		AgentID: d.req.AgentID,
		Kind:    "update",
		Title:   title,
		Content: a.Prompt,
		MediaID: mediaID,
	})
	return err
}

func (d *dispatcher) generateAudio(ctx context.Context, a actions.GenerateAudio) error {
	if d.p.deps.Speech == nil {
		return errSpeechDisabled
	}
	audioID, err := d.p.deps.Speech.Synthesize(ctx, d.req.UserID, d.req.AgentID, a.Text)
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	if audioID == "" {
		return nil
	}
	if a.TaskID != "" {
		d.p.optional(ctx, d.req, "audio_link", func(ctx context.Context) error {
			return d.p.deps.Workspace.LinkOutcomeAudio(ctx, d.req.UserID, a.TaskID, audioID)
		})
		return nil
	}
	_, err = d.p.deps.Workspace.CreateFeedItem(ctx, models.NewFeedItem{
		UserID:  d.req.UserID,
		AgentID: d.req.AgentID,
		Kind:    "update",
		Title:   defaultAudioTitle,
		Content: a.Text,
		MediaID: audioID,
	})
	return err
}

func (d *dispatcher) callTool(ctx context.Context, a actions.CallTool) error {
	if d.p.deps.Tools == nil {
		return errToolsDisabled
	}
	output, err := d.p.deps.Tools.Execute(ctx, a.Tool, a.Arguments)
	if err != nil {
		return fmt.Errorf("tool %s: %w", a.Tool, err)
	}
	_, err = d.p.deps.Memory.SaveThought(ctx, models.Thought{
		UserID:  d.req.UserID,
		AgentID: d.req.AgentID,
		Type:    models.ThoughtToolResult,
		Content: output,
		Context: a.Tool,
	})
	return err
}

func (d *dispatcher) touch(taskID string) {
	if !slices.Contains(d.touched, taskID) {
		d.touched = append(d.touched, taskID)
	}
}

func taskTitle(title, description string) string {
	if title != "" {
		return title
	}
	return truncateRunes(description, actions.MaxTaskTitle)
}
