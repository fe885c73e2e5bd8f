package auth

import (
	"errors"
	"testing"
)

func TestServiceValidateAPIKey(t *testing.T) {
	service := NewService(Config{APIKeys: []APIKeyConfig{
		{Key: "abc123", UserID: "user-1", Name: "Sam"},
		{Key: "no-user"},
	}})

	p, err := service.ValidateAPIKey(" abc123 ")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if p.UserID != "user-1" || p.Name != "Sam" {
		t.Fatalf("principal = %+v", p)
	}
	if _, err := service.ValidateAPIKey("no-user"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("key without user: error = %v, want ErrInvalidKey", err)
	}
	if _, err := service.ValidateAPIKey("wrong"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("wrong key: error = %v, want ErrInvalidKey", err)
	}
}

func TestServiceDisabled(t *testing.T) {
	service := NewService(Config{})
	if service.Enabled() {
		t.Fatal("empty config should disable auth")
	}
	if _, err := service.ValidateJWT("x"); !errors.Is(err, ErrAuthDisabled) {
		t.Fatalf("ValidateJWT() error = %v, want ErrAuthDisabled", err)
	}
	if service.JWT() != nil {
		t.Fatal("JWT() should be nil without a secret")
	}
}
