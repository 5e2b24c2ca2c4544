package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config carries all engine tuning. Instances are intended to be
// configured during initialization and then treated as immutable.
type Config struct {
	JWT       JWTConfig
	Refresh   RefreshConfig
	Blacklist BlacklistConfig
	TwoFactor TwoFactorConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token signing and validation.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh-token lifetime and Redis key layout.
type RefreshConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// BlacklistConfig configures the access-token revocation ledger.
type BlacklistConfig struct {
	RedisPrefix string
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig configures TOTP verification and the pending-login
// handshake token.
type TwoFactorConfig struct {
	Issuer     string
	Digits     int
	Period     int
	Algorithm  string
	Skew       int
	PendingTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig configures the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Callers must still
// provide signing key material before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
		},
		Refresh: RefreshConfig{
			TTL:         30 * 24 * time.Hour,
			RedisPrefix: "art",
		},
		Blacklist: BlacklistConfig{
			RedisPrefix: "abl",
		},
		TwoFactor: TwoFactorConfig{
			Issuer:     "",
			Digits:     6,
			Period:     30,
			Algorithm:  "SHA1",
			Skew:       2,
			PendingTTL: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration against hard floors. It is called by
// [Builder.Build] and may be called directly.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.AccessTTL > time.Hour {
		return errors.New("JWT AccessTTL must be <= 1h")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix is required")
	}
	if c.Blacklist.RedisPrefix == "" {
		return errors.New("Blacklist RedisPrefix is required")
	}
	if c.Refresh.RedisPrefix == c.Blacklist.RedisPrefix {
		return errors.New("Refresh and Blacklist RedisPrefix must differ")
	}

	// Two-factor
	if c.TwoFactor.Digits != 6 && c.TwoFactor.Digits != 8 {
		return errors.New("TwoFactor Digits must be 6 or 8")
	}
	if c.TwoFactor.Period < 15 {
		return errors.New("TwoFactor Period must be >= 15 seconds")
	}
	if c.TwoFactor.Skew < 0 || c.TwoFactor.Skew > 4 {
		return errors.New("TwoFactor Skew must be between 0 and 4")
	}
	if c.TwoFactor.PendingTTL <= 0 || c.TwoFactor.PendingTTL > 30*time.Minute {
		return errors.New("TwoFactor PendingTTL must be between 0 and 30m")
	}
	switch strings.ToUpper(c.TwoFactor.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TwoFactor Algorithm must be SHA1, SHA256, or SHA512")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
