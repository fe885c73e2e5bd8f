package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTServiceGenerateValidate(t *testing.T) {
	service := NewJWTService("secret", time.Hour, "agentdesk")
	token, err := service.Generate(Principal{UserID: "user-1", Name: "Sam", AgentID: "agent-9"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	p, err := service.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if p.UserID != "user-1" || p.Name != "Sam" || p.AgentID != "agent-9" {
		t.Fatalf("principal = %+v", p)
	}
}

func TestJWTServiceRejects(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewJWTService("secret", time.Hour, "agentdesk")
	issuer.now = func() time.Time { return base }
	valid, err := issuer.Generate(Principal{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "user-1",
		Issuer:  "agentdesk",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	noSubject := NewJWTService("secret", time.Hour, "agentdesk")
	noSubject.now = issuer.now
	claimsOnly, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "agentdesk"},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name     string
		verifier *JWTService
		token    string
		at       time.Time
	}{
		{name: "wrong secret", verifier: NewJWTService("other", time.Hour, "agentdesk"), token: valid, at: base},
		{name: "wrong issuer", verifier: NewJWTService("secret", time.Hour, "elsewhere"), token: valid, at: base},
		{name: "expired", verifier: NewJWTService("secret", time.Hour, "agentdesk"), token: valid, at: base.Add(2 * time.Hour)},
		{name: "alg none", verifier: NewJWTService("secret", time.Hour, "agentdesk"), token: unsigned, at: base},
		{name: "missing subject", verifier: noSubject, token: claimsOnly, at: base},
		{name: "garbage", verifier: NewJWTService("secret", time.Hour, "agentdesk"), token: "not-a-jwt", at: base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.at
			tt.verifier.now = func() time.Time { return at }
			if _, err := tt.verifier.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWTServiceWithoutExpiry(t *testing.T) {
	service := NewJWTService("secret", 0, "")
	token, err := service.Generate(Principal{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	service.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	if _, err := service.Validate(token); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if _, err := service.Generate(Principal{}); err == nil {
		t.Fatal("Generate() without user id should fail")
	}
}
