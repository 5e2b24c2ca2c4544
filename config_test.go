package authcore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func validHS256Config() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	cfg := validHS256Config()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with key material should validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"access TTL zero", func(c *Config) { c.JWT.AccessTTL = 0 }},
		{"access TTL too long", func(c *Config) { c.JWT.AccessTTL = 2 * time.Hour }},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }},
		{"hs256 without key", func(c *Config) { c.JWT.PrivateKey = nil }},
		{"ed25519 without keys", func(c *Config) { c.JWT.SigningMethod = "ed25519"; c.JWT.PrivateKey = nil }},
		{"excessive leeway", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }},
		{"refresh TTL below access TTL", func(c *Config) { c.Refresh.TTL = time.Minute }},
		{"empty refresh prefix", func(c *Config) { c.Refresh.RedisPrefix = "" }},
		{"colliding prefixes", func(c *Config) { c.Blacklist.RedisPrefix = c.Refresh.RedisPrefix }},
		{"odd digit count", func(c *Config) { c.TwoFactor.Digits = 7 }},
		{"period too short", func(c *Config) { c.TwoFactor.Period = 5 }},
		{"negative skew", func(c *Config) { c.TwoFactor.Skew = -1 }},
		{"skew too wide", func(c *Config) { c.TwoFactor.Skew = 10 }},
		{"pending TTL too long", func(c *Config) { c.TwoFactor.PendingTTL = time.Hour }},
		{"unknown totp algorithm", func(c *Config) { c.TwoFactor.Algorithm = "MD5" }},
		{"weak argon2 memory", func(c *Config) { c.Password.Memory = 1024 }},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }},
		{"short key", func(c *Config) { c.Password.KeyLength = 8 }},
		{"audit enabled without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validHS256Config()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigDetachesKeys(t *testing.T) {
	cfg := validHS256Config()
	clone := cloneConfig(cfg)

	cfg.JWT.PrivateKey[0] = 'X'
	if clone.JWT.PrivateKey[0] == 'X' {
		t.Fatal("clone shares key storage with the original")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().WithConfig(validHS256Config()).Build(); err == nil {
		t.Fatal("build without redis should fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithUserStore(newMockUserStore())

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("second build should fail")
	}
}
