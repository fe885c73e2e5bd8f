// Package auth authenticates HTTP channel callers with HS256 JWTs or static
// API keys. The authenticated user id is the token subject.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"
)

var (
	ErrAuthDisabled = errors.New("auth disabled")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid api key")
)

// Principal is an authenticated caller.
type Principal struct {
	UserID string
	Name   string
	// AgentID is the agent a token is scoped to; empty means the default agent.
	AgentID string
}

// Config configures authentication helpers.
type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	Issuer      string
	APIKeys     []APIKeyConfig
}

// APIKeyConfig binds a static API key to a user.
type APIKeyConfig struct {
	Key    string
	UserID string
	Name   string
}

// Service validates JWTs and API keys.
type Service struct {
	jwt     *JWTService
	apiKeys map[string]Principal
}

// NewService constructs an auth service from static configuration.
func NewService(cfg Config) *Service {
	service := &Service{apiKeys: map[string]Principal{}}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		service.jwt = NewJWTService(cfg.JWTSecret, cfg.TokenExpiry, cfg.Issuer)
	}
	for _, entry := range cfg.APIKeys {
		key := strings.TrimSpace(entry.Key)
		userID := strings.TrimSpace(entry.UserID)
		if key == "" || userID == "" {
			continue
		}
		service.apiKeys[key] = Principal{UserID: userID, Name: strings.TrimSpace(entry.Name)}
	}
	return service
}

// Enabled reports whether any credential type is configured.
func (s *Service) Enabled() bool {
	return s != nil && (s.jwt != nil || len(s.apiKeys) > 0)
}

// JWT returns the token service, or nil when no secret is configured.
func (s *Service) JWT() *JWTService {
	if s == nil {
		return nil
	}
	return s.jwt
}

// ValidateJWT validates a bearer token.
func (s *Service) ValidateJWT(token string) (Principal, error) {
	if s == nil || s.jwt == nil {
		return Principal{}, ErrAuthDisabled
	}
	return s.jwt.Validate(token)
}

// ValidateAPIKey matches key against the configured keys in constant time.
func (s *Service) ValidateAPIKey(key string) (Principal, error) {
	if s == nil || len(s.apiKeys) == 0 {
		return Principal{}, ErrAuthDisabled
	}
	input := []byte(strings.TrimSpace(key))
	var matched *Principal
	for stored, principal := range s.apiKeys {
		if subtle.ConstantTimeCompare(input, []byte(stored)) == 1 {
			p := principal
			matched = &p
		}
	}
	if matched == nil {
		return Principal{}, ErrInvalidKey
	}
	return *matched, nil
}
