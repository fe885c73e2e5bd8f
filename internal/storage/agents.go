package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// UpsertUser creates or replaces the owner defaults for user.ID.
func (s *Store) UpsertUser(ctx context.Context, user models.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO users (id, name, agent_name, provider, model, system_prompt, capabilities, restrictions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   agent_name = excluded.agent_name,
		   provider = excluded.provider,
		   model = excluded.model,
		   system_prompt = excluded.system_prompt,
		   capabilities = excluded.capabilities,
		   restrictions = excluded.restrictions`,
		user.ID, user.Name, user.AgentName, user.Provider, user.Model, user.SystemPrompt,
		encodeList(user.Capabilities), encodeList(user.Restrictions), user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns ErrNotFound when the user does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	var caps, restrictions string
	err := s.queryRow(ctx,
		`SELECT id, name, agent_name, provider, model, system_prompt, capabilities, restrictions, created_at
		 FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &user.Name, &user.AgentName, &user.Provider, &user.Model, &user.SystemPrompt, &caps, &restrictions, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.Capabilities = decodeList(caps)
	user.Restrictions = decodeList(restrictions)
	return &user, nil
}

// CreateAgent stores a new agent and returns its id. Slugs are unique per owner.
func (s *Store) CreateAgent(ctx context.Context, agent models.Agent) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(agent.Slug))
	if agent.UserID == "" || slug == "" {
		return "", errors.New("agent user id and slug are required")
	}
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = s.now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO agents (id, user_id, slug, name, provider, model, system_prompt, capabilities, restrictions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.UserID, slug, agent.Name, agent.Provider, agent.Model, agent.SystemPrompt,
		encodeList(agent.Capabilities), encodeList(agent.Restrictions), agent.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrAlreadyExists
		}
		return "", fmt.Errorf("create agent: %w", err)
	}
	return agent.ID, nil
}

func (s *Store) getAgent(ctx context.Context, userID, clause string, arg string) (*models.Agent, error) {
	var agent models.Agent
	var caps, restrictions string
	err := s.queryRow(ctx,
		`SELECT id, user_id, slug, name, provider, model, system_prompt, capabilities, restrictions, created_at
		 FROM agents WHERE user_id = ? AND `+clause+` = ?`, userID, arg,
	).Scan(&agent.ID, &agent.UserID, &agent.Slug, &agent.Name, &agent.Provider, &agent.Model,
		&agent.SystemPrompt, &caps, &restrictions, &agent.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	agent.Capabilities = decodeList(caps)
	agent.Restrictions = decodeList(restrictions)
	return &agent, nil
}

// GetAgentConfig merges the owner defaults with the agent's overrides. An
// empty agentID selects the owner's default agent. It returns nil, nil when
// the user or agent does not exist.
func (s *Store) GetAgentConfig(ctx context.Context, userID, agentID string) (*models.AgentConfig, error) {
	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg := &models.AgentConfig{
		AgentID:      agentID,
		AgentName:    user.AgentName,
		OwnerName:    user.Name,
		Provider:     user.Provider,
		Model:        user.Model,
		SystemPrompt: user.SystemPrompt,
		Capabilities: user.Capabilities,
		Restrictions: user.Restrictions,
	}
	if agentID == "" {
		return cfg, nil
	}

	agent, err := s.getAgent(ctx, userID, "id", agentID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if agent.Name != "" {
		cfg.AgentName = agent.Name
	}
	if agent.Provider != "" {
		cfg.Provider = agent.Provider
	}
	if agent.Model != "" {
		cfg.Model = agent.Model
	}
	if agent.SystemPrompt != "" {
		cfg.SystemPrompt = agent.SystemPrompt
	}
	if len(agent.Capabilities) > 0 {
		cfg.Capabilities = agent.Capabilities
	}
	if len(agent.Restrictions) > 0 {
		cfg.Restrictions = agent.Restrictions
	}
	return cfg, nil
}

// LookupAgentBySlug returns nil, nil when no agent of the owner has slug.
func (s *Store) LookupAgentBySlug(ctx context.Context, userID, slug string) (*models.AgentRef, error) {
	agent, err := s.getAgent(ctx, userID, "slug", strings.ToLower(strings.TrimSpace(slug)))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.AgentRef{ID: agent.ID, Name: agent.Name, Slug: agent.Slug}, nil
}

// SaveProviderCredentials encodes and stores the key for (user, provider).
func (s *Store) SaveProviderCredentials(ctx context.Context, userID, provider string, creds models.ProviderCredentials) error {
	encoded, err := s.codec.Encode(creds.APIKey)
	if err != nil {
		return fmt.Errorf("encode api key: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO provider_credentials (user_id, provider, api_key, base_url, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
		   api_key = excluded.api_key,
		   base_url = excluded.base_url,
		   updated_at = excluded.updated_at`,
		userID, strings.ToLower(provider), encoded, creds.BaseURL, s.now(),
	)
	if err != nil {
		return fmt.Errorf("save provider credentials: %w", err)
	}
	return nil
}

// GetProviderCredentials returns nil, nil when no key is stored.
func (s *Store) GetProviderCredentials(ctx context.Context, userID, provider string) (*models.ProviderCredentials, error) {
	var stored, baseURL string
	err := s.queryRow(ctx,
		`SELECT api_key, base_url FROM provider_credentials WHERE user_id = ? AND provider = ?`,
		userID, strings.ToLower(provider),
	).Scan(&stored, &baseURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get provider credentials: %w", err)
	}
	key, err := s.codec.Decode(stored)
	if err != nil {
		return nil, fmt.Errorf("decode api key: %w", err)
	}
	return &models.ProviderCredentials{APIKey: key, BaseURL: baseURL}, nil
}

// SaveEmbeddingCredentials encodes and stores the embedding endpoint for user.
func (s *Store) SaveEmbeddingCredentials(ctx context.Context, userID string, creds models.EmbeddingCredentials) error {
	encoded, err := s.codec.Encode(creds.APIKey)
	if err != nil {
		return fmt.Errorf("encode api key: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO embedding_credentials (user_id, api_key, base_url, model, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   api_key = excluded.api_key,
		   base_url = excluded.base_url,
		   model = excluded.model,
		   updated_at = excluded.updated_at`,
		userID, encoded, creds.BaseURL, creds.Model, s.now(),
	)
	if err != nil {
		return fmt.Errorf("save embedding credentials: %w", err)
	}
	return nil
}

// GetEmbeddingCredentials returns nil, nil when embeddings are not configured.
func (s *Store) GetEmbeddingCredentials(ctx context.Context, userID string) (*models.EmbeddingCredentials, error) {
	var stored string
	var creds models.EmbeddingCredentials
	err := s.queryRow(ctx,
		`SELECT api_key, base_url, model FROM embedding_credentials WHERE user_id = ?`, userID,
	).Scan(&stored, &creds.BaseURL, &creds.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding credentials: %w", err)
	}
	if creds.APIKey, err = s.codec.Decode(stored); err != nil {
		return nil, fmt.Errorf("decode api key: %w", err)
	}
	return &creds, nil
}
