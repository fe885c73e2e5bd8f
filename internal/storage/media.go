package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// SaveMedia records a generated media object and returns its id.
func (s *Store) SaveMedia(ctx context.Context, media models.Media) (string, error) {
	if media.UserID == "" || media.BlobKey == "" {
		return "", errors.New("media user id and blob key are required")
	}
	if media.ID == "" {
		media.ID = uuid.NewString()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO media (id, user_id, agent_id, kind, blob_key, content_type, size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		media.ID, media.UserID, media.AgentID, media.Kind, media.BlobKey, media.ContentType, media.Size, media.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save media: %w", err)
	}
	return media.ID, nil
}

// GetMedia returns ErrNotFound when the media does not belong to userID.
func (s *Store) GetMedia(ctx context.Context, userID, id string) (*models.Media, error) {
	var m models.Media
	err := s.queryRow(ctx,
		`SELECT id, user_id, agent_id, kind, blob_key, content_type, size, created_at
		 FROM media WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&m.ID, &m.UserID, &m.AgentID, &m.Kind, &m.BlobKey, &m.ContentType, &m.Size, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return &m, nil
}
