package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// LogSecurityFlag persists one scanner match.
func (s *Store) LogSecurityFlag(ctx context.Context, rec models.SecurityFlagRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO security_flags (id, user_id, source, flag_type, severity, pattern, input_snippet, action, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.UserID, rec.Source, rec.FlagType, rec.Severity, rec.Pattern, rec.InputSnippet, rec.Action, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("log security flag: %w", err)
	}
	return nil
}

// LogAgentAction persists one pipeline run.
func (s *Store) LogAgentAction(ctx context.Context, rec models.AgentActionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO agent_actions (id, user_id, action, resource, caller_type, caller_identity, token_count, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), rec.UserID, rec.Action, rec.Resource, rec.CallerType, rec.CallerIdentity, rec.TokenCount, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("log agent action: %w", err)
	}
	return nil
}

// ListAgentActions returns the newest audited runs of a user.
func (s *Store) ListAgentActions(ctx context.Context, userID string, limit int) ([]models.AgentActionRecord, error) {
	rows, err := s.query(ctx,
		`SELECT user_id, action, resource, caller_type, caller_identity, token_count, status, created_at
		 FROM agent_actions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list agent actions: %w", err)
	}
	defer rows.Close()

	var out []models.AgentActionRecord
	for rows.Next() {
		var rec models.AgentActionRecord
		if err := rows.Scan(&rec.UserID, &rec.Action, &rec.Resource, &rec.CallerType, &rec.CallerIdentity,
			&rec.TokenCount, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan agent action: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListSecurityFlags returns the newest security flags of a user.
func (s *Store) ListSecurityFlags(ctx context.Context, userID string, limit int) ([]models.SecurityFlagRecord, error) {
	rows, err := s.query(ctx,
		`SELECT user_id, source, flag_type, severity, pattern, input_snippet, action, created_at
		 FROM security_flags WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list security flags: %w", err)
	}
	defer rows.Close()

	var out []models.SecurityFlagRecord
	for rows.Next() {
		var rec models.SecurityFlagRecord
		if err := rows.Scan(&rec.UserID, &rec.Source, &rec.FlagType, &rec.Severity, &rec.Pattern,
			&rec.InputSnippet, &rec.Action, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan security flag: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
