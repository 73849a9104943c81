package token

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func hsManager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-secret"),
		Issuer:        "peerbonus-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestIssueParseRoundTrip(t *testing.T) {
	m := hsManager(t, time.Hour)

	tok, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.UserID())
	}
}

func TestParseRejectsForeignKey(t *testing.T) {
	m := hsManager(t, time.Hour)
	other, err := NewManager(Config{
		AccessTTL:     time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("another-secret"),
		Issuer:        "peerbonus-test",
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	tok, _ := other.Issue("user-1")
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("expected signature failure")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := hsManager(t, time.Hour)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "peerbonus-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	tok, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(tok); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	tok, err := m.Issue("user-9")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(tok); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestPublicKeyOf(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	got, err := PublicKeyOf(priv)
	if err != nil {
		t.Fatalf("PublicKeyOf: %v", err)
	}
	if !bytes.Equal(got, pub) {
		t.Fatal("derived public key does not match")
	}
	if _, err := PublicKeyOf([]byte("short")); err == nil {
		t.Fatal("expected error for a malformed key")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256},
		{AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func TestInspect(t *testing.T) {
	m := hsManager(t, time.Hour)
	tok, _ := m.Issue("user-1")

	claims, err := Inspect(tok)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Fatalf("expected user-1, got %q", claims.UserID())
	}
	if claims.ExpiredAt(time.Now(), 0) {
		t.Fatal("fresh token reported expired")
	}
	if !claims.ExpiredAt(time.Now().Add(2*time.Hour), 0) {
		t.Fatal("token should be expired two hours later")
	}
	if !claims.ExpiredAt(time.Now(), 90*time.Minute) {
		t.Fatal("skew larger than ttl should report expired")
	}

	if _, err := Inspect("tok-abc"); !errors.Is(err, ErrNotJWT) {
		t.Fatalf("expected ErrNotJWT for opaque token, got %v", err)
	}
	if _, err := Inspect("a.b.c"); !errors.Is(err, ErrNotJWT) {
		t.Fatalf("expected ErrNotJWT for garbage, got %v", err)
	}
}

func TestClaimsWithoutExpiryNeverExpire(t *testing.T) {
	c := &Claims{}
	if c.ExpiredAt(time.Now().Add(100*365*24*time.Hour), time.Hour) {
		t.Fatal("claims without exp must not expire")
	}
}
