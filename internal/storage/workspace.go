package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentdesk/internal/blobstore"
	"github.com/haasonsaas/agentdesk/pkg/models"
)

// DefaultColumn is the board column of tasks created without one.
const DefaultColumn = "todo"

const taskColumns = `id, user_id, agent_id, parent_task_id, title, description, priority, board_column,
	status, outcome, outcome_file_id, audio_id, workflow, created_at, updated_at`

// CreateTask stores a pending task. A ParentTaskID makes it a subtask and
// must name a task of the same user.
func (s *Store) CreateTask(ctx context.Context, in models.NewTask) (*models.Task, error) {
	if in.UserID == "" || strings.TrimSpace(in.Description) == "" {
		return nil, errors.New("task user id and description are required")
	}
	if in.ParentTaskID != "" {
		if _, err := s.GetTask(ctx, in.UserID, in.ParentTaskID); err != nil {
			return nil, fmt.Errorf("parent task %s: %w", in.ParentTaskID, err)
		}
	}
	now := s.now()
	task := &models.Task{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		AgentID:      in.AgentID,
		ParentTaskID: in.ParentTaskID,
		Title:        in.Title,
		Description:  in.Description,
		Priority:     in.Priority,
		Column:       in.Column,
		Status:       models.TaskPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Column == "" {
		task.Column = DefaultColumn
	}
	_, err := s.exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', '', '[]', ?, ?)`,
		task.ID, task.UserID, task.AgentID, task.ParentTaskID, task.Title, task.Description,
		string(task.Priority), task.Column, string(task.Status), task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// GetTask returns ErrNotFound when the task does not belong to userID.
func (s *Store) GetTask(ctx context.Context, userID, taskID string) (*models.Task, error) {
	task, err := scanTask(s.queryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns the user's tasks, oldest first.
func (s *Store) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	rows, err := s.query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var priority, status, workflow string
	if err := row.Scan(&task.ID, &task.UserID, &task.AgentID, &task.ParentTaskID, &task.Title, &task.Description,
		&priority, &task.Column, &status, &task.Outcome, &task.OutcomeFileID, &task.AudioID, &workflow,
		&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	task.Priority = models.TaskPriority(priority)
	task.Status = models.TaskStatus(status)
	if workflow != "" && workflow != "[]" {
		if err := json.Unmarshal([]byte(workflow), &task.Workflow); err != nil {
			return nil, fmt.Errorf("unmarshal workflow: %w", err)
		}
	}
	return &task, nil
}

// UpdateTaskStatus sets the status. An empty outcome keeps the stored one.
func (s *Store) UpdateTaskStatus(ctx context.Context, userID, taskID string, status models.TaskStatus, outcome string) error {
	var err error
	if outcome == "" {
		err = mustAffect(s.exec(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			string(status), s.now(), taskID, userID))
	} else {
		err = mustAffect(s.exec(ctx,
			`UPDATE tasks SET status = ?, outcome = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
			string(status), outcome, s.now(), taskID, userID))
	}
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

// MoveTask changes the board column of a task.
func (s *Store) MoveTask(ctx context.Context, userID, taskID, column string) error {
	if err := mustAffect(s.exec(ctx,
		`UPDATE tasks SET board_column = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		column, s.now(), taskID, userID)); err != nil {
		return fmt.Errorf("move task %s: %w", taskID, err)
	}
	return nil
}

// StoreOutcomeFile writes the full outcome to the blob store, records it and
// links it to the task. It returns the file id.
func (s *Store) StoreOutcomeFile(ctx context.Context, userID, taskID, content string) (string, error) {
	if s.blobs == nil {
		return "", ErrNoBlobStore
	}
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return "", fmt.Errorf("outcome task %s: %w", taskID, err)
	}
	key := blobstore.NewKey(userID, blobstore.KindOutcome, "text/markdown")
	if _, err := s.blobs.Put(ctx, key, strings.NewReader(content), "text/markdown"); err != nil {
		return "", fmt.Errorf("store outcome file: %w", err)
	}
	id := uuid.NewString()
	if _, err := s.exec(ctx,
		`INSERT INTO outcome_files (id, user_id, task_id, blob_key, size, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, taskID, key, int64(len(content)), s.now()); err != nil {
		return "", fmt.Errorf("record outcome file: %w", err)
	}
	if err := mustAffect(s.exec(ctx,
		`UPDATE tasks SET outcome_file_id = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		id, s.now(), taskID, userID)); err != nil {
		return "", fmt.Errorf("link outcome file: %w", err)
	}
	return id, nil
}

// ReadOutcomeFile returns the content of a stored outcome file.
func (s *Store) ReadOutcomeFile(ctx context.Context, userID, fileID string) (string, error) {
	if s.blobs == nil {
		return "", ErrNoBlobStore
	}
	var key string
	err := s.queryRow(ctx,
		`SELECT blob_key FROM outcome_files WHERE id = ? AND user_id = ?`, fileID, userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get outcome file: %w", err)
	}
	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("read outcome file: %w", err)
	}
	return string(data), nil
}

// LinkOutcomeAudio attaches a synthesized audio clip to a task.
func (s *Store) LinkOutcomeAudio(ctx context.Context, userID, taskID, audioID string) error {
	if err := mustAffect(s.exec(ctx,
		`UPDATE tasks SET audio_id = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		audioID, s.now(), taskID, userID)); err != nil {
		return fmt.Errorf("link audio to task %s: %w", taskID, err)
	}
	return nil
}

// AttachWorkflowSteps replaces the recorded pipeline steps of a task.
func (s *Store) AttachWorkflowSteps(ctx context.Context, userID, taskID string, steps []models.WorkflowStep) error {
	data, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	if err := mustAffect(s.exec(ctx,
		`UPDATE tasks SET workflow = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(data), s.now(), taskID, userID)); err != nil {
		return fmt.Errorf("attach workflow to task %s: %w", taskID, err)
	}
	return nil
}

// CreateSkill stores a skill on the agent's profile.
func (s *Store) CreateSkill(ctx context.Context, in models.NewSkill) (*models.Skill, error) {
	if in.UserID == "" || strings.TrimSpace(in.Name) == "" {
		return nil, errors.New("skill user id and name are required")
	}
	now := s.now()
	skill := &models.Skill{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		AgentID:     in.AgentID,
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Level:       in.Level,
		IsPublic:    in.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.exec(ctx,
		`INSERT INTO skills (id, user_id, agent_id, name, description, category, level, bio, is_public, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)`,
		skill.ID, skill.UserID, skill.AgentID, skill.Name, skill.Description, skill.Category, skill.Level,
		skill.IsPublic, skill.CreatedAt, skill.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create skill: %w", err)
	}
	return skill, nil
}

// GetSkill returns ErrNotFound when the skill does not belong to userID.
func (s *Store) GetSkill(ctx context.Context, userID, skillID string) (*models.Skill, error) {
	var skill models.Skill
	err := s.queryRow(ctx,
		`SELECT id, user_id, agent_id, name, description, category, level, bio, is_public, created_at, updated_at
		 FROM skills WHERE id = ? AND user_id = ?`, skillID, userID,
	).Scan(&skill.ID, &skill.UserID, &skill.AgentID, &skill.Name, &skill.Description, &skill.Category,
		&skill.Level, &skill.Bio, &skill.IsPublic, &skill.CreatedAt, &skill.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return &skill, nil
}

// UpdateSkill applies the non-nil fields of update.
func (s *Store) UpdateSkill(ctx context.Context, userID, skillID string, update models.SkillUpdate) error {
	var sets []string
	var args []any
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, *update.Bio)
	}
	if update.Level != nil {
		sets = append(sets, "level = ?")
		args = append(args, *update.Level)
	}
	if update.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, *update.IsPublic)
	}
	if len(sets) == 0 {
		return errors.New("skill update has no fields")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), skillID, userID)
	if err := mustAffect(s.exec(ctx,
		`UPDATE skills SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`, args...)); err != nil {
		return fmt.Errorf("update skill %s: %w", skillID, err)
	}
	return nil
}

// CreateFeedItem posts to the user's feed.
func (s *Store) CreateFeedItem(ctx context.Context, in models.NewFeedItem) (*models.FeedItem, error) {
	if in.UserID == "" || strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("feed item user id and title are required")
	}
	item := &models.FeedItem{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		AgentID:   in.AgentID,
		Kind:      in.Kind,
		Title:     in.Title,
		Content:   in.Content,
		MediaID:   in.MediaID,
		IsPublic:  in.IsPublic,
		CreatedAt: s.now(),
	}
	if item.Kind == "" {
		item.Kind = "update"
	}
	_, err := s.exec(ctx,
		`INSERT INTO feed_items (id, user_id, agent_id, kind, title, content, media_id, is_public, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.AgentID, item.Kind, item.Title, item.Content, item.MediaID, item.IsPublic, item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create feed item: %w", err)
	}
	return item, nil
}

// ListFeed returns the newest feed items of a user.
func (s *Store) ListFeed(ctx context.Context, userID string, limit int) ([]models.FeedItem, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, agent_id, kind, title, content, media_id, is_public, created_at
		 FROM feed_items WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	var out []models.FeedItem
	for rows.Next() {
		var item models.FeedItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.AgentID, &item.Kind, &item.Title, &item.Content,
			&item.MediaID, &item.IsPublic, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
