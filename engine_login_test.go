package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginIssuesTokenPair(t *testing.T) {
	engine, store := newTestEngine(t)
	seedUser(t, engine, store, "alice@example.com", testPassword)

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	result, err := engine.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("unexpected two-factor requirement")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	auth, err := engine.Authorize(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Email != "alice@example.com" {
		t.Fatalf("authorize email = %q", auth.Email)
	}

	methods := store.historyMethods()
	if len(methods) != 1 || methods[0] != "password" {
		t.Fatalf("history methods = %v", methods)
	}
	if got := engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("login success counter = %d", got)
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	engine, store := newTestEngine(t)
	seedUser(t, engine, store, "alice@example.com", testPassword)

	if _, err := engine.Login(context.Background(), "  ALICE@Example.COM ", testPassword); err != nil {
		t.Fatalf("login with unnormalized email: %v", err)
	}
}

func TestLoginRejections(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, engine, store, "alice@example.com", testPassword)

	// OAuth-only account, no password set.
	oauthOnly := seedUser(t, engine, store, "bob@example.com", "")

	disabled := seedUser(t, engine, store, "carol@example.com", testPassword)
	store.update(t, disabled.UserID, func(u *UserRecord) {
		u.DisabledAt = time.Now()
	})

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", user.Email, "not-the-password"},
		{"unknown user", "nobody@example.com", testPassword},
		{"empty password", user.Email, ""},
		{"no password set", oauthOnly.Email, testPassword},
		{"disabled account", disabled.Email, testPassword},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Login(context.Background(), tc.email, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("got %v, want ErrInvalidCredentials", err)
			}
		})
	}

	if got := engine.MetricsSnapshot().Counters[MetricLoginFailure]; got != uint64(len(cases)) {
		t.Fatalf("login failure counter = %d, want %d", got, len(cases))
	}
}

func TestLoginTwoFactorDefersTokens(t *testing.T) {
	engine, store := newTestEngine(t)
	user := seedUser(t, engine, store, "alice@example.com", testPassword)

	secret, _, err := engine.totp.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	store.update(t, user.UserID, func(u *UserRecord) {
		u.TwoFactorSecret = secret
		u.TwoFactorEnabled = true
	})

	result, err := engine.Login(context.Background(), user.Email, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !result.TwoFactorRequired {
		t.Fatal("expected two-factor requirement")
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("no resource tokens may be issued before the second factor")
	}
	if result.PendingToken == "" {
		t.Fatal("expected pending token")
	}

	// The pending token must not pass as an access token.
	if _, err := engine.Authorize(context.Background(), result.PendingToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("authorize with pending token: got %v, want ErrUnauthorized", err)
	}
}

func TestEngineNotReady(t *testing.T) {
	var engine *Engine
	if _, err := engine.Login(context.Background(), "a@b.c", "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("got %v, want ErrEngineNotReady", err)
	}
}
