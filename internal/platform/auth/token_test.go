package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testManager() Manager {
	m := NewManager("unit-test-secret", time.Hour)
	m.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestSignAndParse(t *testing.T) {
	m := testManager()
	token, err := m.Sign("user-1", false)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Subject != "user-1" || claims.Guest {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParse_GuestFlagSurvives(t *testing.T) {
	m := testManager()
	token, _ := m.Sign("guest-abc", true)
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !claims.Guest {
		t.Fatal("guest flag lost")
	}
}

func TestParse_ExpiredToken(t *testing.T) {
	m := testManager()
	token, _ := m.Sign("user-1", false)

	m.Now = func() time.Time { return time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC) }
	if _, err := m.Parse(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParse_WrongSecret(t *testing.T) {
	m := testManager()
	token, _ := m.Sign("user-1", false)

	other := testManager()
	other.Secret = []byte("a-different-secret")
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParse_TamperedPayload(t *testing.T) {
	m := testManager()
	token, _ := m.Sign("user-1", false)

	parts := strings.Split(token, ".")
	other, _ := m.Sign("user-2", false)
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	if _, err := m.Parse(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	m := testManager()
	for _, token := range []string{"", "abc", "a.b", "a.b.c.d", "!.!.!"} {
		if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if got := BearerToken("Bearer abc.def.ghi"); got != "abc.def.ghi" {
		t.Fatalf("BearerToken = %q", got)
	}
	if got := BearerToken("bearer abc"); got != "abc" {
		t.Fatalf("case-insensitive scheme: got %q", got)
	}
	for _, header := range []string{"", "Basic abc", "Bearerabc"} {
		if got := BearerToken(header); got != "" {
			t.Fatalf("header %q: expected empty, got %q", header, got)
		}
	}
}
