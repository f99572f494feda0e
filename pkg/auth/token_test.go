package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssueAndVerify(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour, TokenOptions{Issuer: "docuchat"})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	userID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("subject = %q, want %q", userID, "user-123")
	}
}

func TestTokenVerifyRejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Nanosecond, TokenOptions{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret-a", time.Hour, TokenOptions{})
	other, _ := NewTokenIssuer("secret-b", time.Hour, TokenOptions{})
	token, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestTokenVerifyRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret-a", time.Hour, TokenOptions{})
	for _, raw := range []string{"", "not.a.jwt", "aaaa"} {
		if _, err := issuer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) = %v, want ErrInvalidToken", raw, err)
		}
	}
}
