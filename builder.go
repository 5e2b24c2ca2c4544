package authcore

import (
	"errors"

	"github.com/nchabane/authcore/blacklist"
	"github.com/nchabane/authcore/jwt"
	"github.com/nchabane/authcore/password"
	"github.com/nchabane/authcore/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it during initialization and
// treat it as single-use: Build validates everything once and the
// resulting Engine is immutable.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration. The config is cloned;
// later mutation of cfg by the caller does not affect the engine.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the refresh ledger and the
// access-token blacklist.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the persistence adapter for accounts, provider
// links, and login history. Required.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithAuditSink sets the destination for audit events. Events are only
// dispatched when Config.Audit.Enabled is also set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authorize-latency histogram. Implies
// metrics collection.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	if enabled {
		b.config.Metrics.Enabled = true
	}
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("authcore: builder already built")
	}

	if b.redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("authcore: user store is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		PendingTTL:    b.config.TwoFactor.PendingTTL,
		SigningMethod: jwt.SigningMethod(b.config.JWT.SigningMethod),
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Audience:      b.config.JWT.Audience,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	// Burned-in hash for the unknown-user login path.
	dummyHash, err := hasher.Hash("authcore-timing-equalizer")
	if err != nil {
		return nil, err
	}

	var metrics *Metrics
	if b.config.Metrics.Enabled {
		metrics = NewMetrics(b.config.Metrics)
	}

	sink := b.auditSink
	if sink == nil {
		sink = NoOpSink{}
	}

	engine := &Engine{
		config:       b.config,
		refreshStore: refresh.NewStore(b.redis, b.config.Refresh.RedisPrefix),
		blacklist:    blacklist.NewStore(b.redis, b.config.Blacklist.RedisPrefix),
		audit:        newAuditDispatcher(b.config.Audit, sink),
		metrics:      metrics,
		passwordHash: hasher,
		totp:         newTOTPManager(b.config.TwoFactor),
		jwtManager:   jwtManager,
		users:        b.users,
		dummyHash:    dummyHash,
	}

	b.built = true
	return engine, nil
}
