package auth

import (
	"testing"
	"time"
)

func TestServiceDisabledWhenNoToken(t *testing.T) {
	s := NewService("")
	if s.Enabled() {
		t.Fatal("expected auth disabled with empty token")
	}
	if err := s.Authenticate(""); err != nil {
		t.Fatalf("expected no error when auth disabled, got %v", err)
	}
}

func TestAuthenticateMatchesToken(t *testing.T) {
	s := NewService("T")
	if err := s.Authenticate("T"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := s.Authenticate("wrong"); err == nil {
		t.Fatal("expected mismatch error")
	}
	if err := s.Authenticate(""); err == nil {
		t.Fatal("expected error for empty token when auth enabled")
	}
}

func TestJWTModeAcceptsIssuedToken(t *testing.T) {
	s := NewService("").WithJWT("supersecret", time.Minute)
	tok, err := s.IssueJWT("user-1")
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	if err := s.Authenticate(tok); err != nil {
		t.Fatalf("expected issued jwt to authenticate, got %v", err)
	}
	if err := s.Authenticate("garbage"); err == nil {
		t.Fatal("expected garbage token to fail")
	}
}
