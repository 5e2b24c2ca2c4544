package authcore

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nchabane/authcore/blacklist"
	"github.com/nchabane/authcore/internal"
	"github.com/nchabane/authcore/jwt"
	"github.com/nchabane/authcore/password"
	"github.com/nchabane/authcore/refresh"
)

const (
	loginMethodPassword  = "password"
	loginMethodOAuth     = "oauth"
	loginMethodTwoFactor = "2fa"
)

const (
	revokeReasonRotated   = "rotated"
	revokeReasonLogout    = "logout"
	revokeReasonLogoutAll = "logout_all"
	revokeReasonReuse     = "reuse_detected"
	revokeReasonDisabled  = "account_disabled"
)

// Engine is the authentication core. Build one with [Builder]; instances
// are immutable after construction and safe for concurrent use.
type Engine struct {
	config       Config
	refreshStore *refresh.Store
	blacklist    *blacklist.Store
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	totp         *totpManager
	jwtManager   *jwt.Manager
	users        UserStore

	// Hash of an unguessable throwaway password, verified against on
	// unknown-user logins so the failure path costs the same as a real
	// password check.
	dummyHash string
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates an email/password pair. On success it returns a
// token pair; when the account has two-factor enabled it returns a
// pending handshake token instead (TwoFactorRequired is set and no
// resource tokens are issued).
//
// Unknown users, wrong passwords, accounts without a password, and
// disabled accounts all fail with [ErrInvalidCredentials]: login does
// not reveal account existence or state.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn the same argon2 work as a real verification.
		_, _ = e.passwordHash.Verify(pass, e.dummyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"email":  email,
				"reason": "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if user.PasswordHash == "" {
		_, _ = e.passwordHash.Verify(pass, e.dummyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "no_password_set",
			}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}
	pass = ""

	if user.Disabled() {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "account_disabled",
			}
		})
		return nil, ErrInvalidCredentials
	}

	result, err := e.finishLogin(ctx, user, loginMethodPassword)
	if err != nil {
		return nil, err
	}
	if !result.TwoFactorRequired {
		e.metricInc(MetricLoginSuccess)
		e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"method": loginMethodPassword,
			}
		})
	}
	return result, nil
}

// finishLogin defers to the two-factor handshake when the account has it
// enabled, otherwise issues a full token pair.
func (e *Engine) finishLogin(ctx context.Context, user UserRecord, method string) (*LoginResult, error) {
	if user.TwoFactorEnabled {
		pending, err := e.jwtManager.CreatePending(user.UserID)
		if err != nil {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, "", err, nil)
			return nil, err
		}

		e.metricInc(MetricTwoFactorRequired)
		e.emitAudit(ctx, auditEventLoginTwoFactor, true, user.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"method": method,
			}
		})
		return &LoginResult{
			TwoFactorRequired: true,
			PendingToken:      pending,
		}, nil
	}

	return e.issueTokenPair(ctx, user, method)
}

// issueTokenPair mints an access JWT plus an opaque refresh token and
// persists the refresh record. method selects the login-history entry;
// an empty method (rotation) records no history.
func (e *Engine) issueTokenPair(ctx context.Context, user UserRecord, method string) (*LoginResult, error) {
	tokenID := uuid.NewString()

	access, err := e.jwtManager.CreateAccess(user.UserID, user.Email, tokenID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := internal.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &refresh.Record{
		UserID:    user.UserID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(e.config.Refresh.TTL).Unix(),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}

	if err := e.refreshStore.Save(ctx, internal.HashRefreshToken(refreshToken), rec, e.config.Refresh.TTL); err != nil {
		return nil, err
	}

	if method != "" {
		// History is best-effort and must not block token issuance.
		if err := e.users.AppendLoginHistory(ctx, LoginHistoryEntry{
			UserID:    user.UserID,
			Method:    method,
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			At:        now,
		}); err != nil {
			log.Print("authcore: login history append failed")
		}
	}

	return &LoginResult{
		AccessToken:  access,
		RefreshToken: refreshToken,
	}, nil
}

// Refresh rotates a refresh token: the presented token is atomically
// consumed (soft-revoked with reason "rotated") and a fresh pair is
// issued. Presenting an already-consumed token is treated as theft: every
// live refresh token belonging to the record's user is revoked and
// [ErrTokenReuseDetected] is returned.
//
//	Performance: 1 Lua EVALSHA on the hot path.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.refreshStore == nil {
		return nil, ErrEngineNotReady
	}

	if err := internal.CheckRefreshTokenShape(refreshToken); err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, ErrTokenInvalid
	}

	rec, err := e.refreshStore.Consume(ctx, internal.HashRefreshToken(refreshToken), revokeReasonRotated)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenNotFound, func() map[string]string {
				return map[string]string{
					"reason": "token_not_found",
				}
			})
			return nil, ErrTokenNotFound
		case errors.Is(err, refresh.ErrAlreadyRevoked):
			e.metricInc(MetricRefreshReuseDetected)
			userID := ""
			if rec != nil {
				userID = rec.UserID
				if _, revErr := e.refreshStore.RevokeAllForUser(ctx, rec.UserID, revokeReasonReuse); revErr != nil {
					log.Print("authcore: cascade revocation after reuse failed")
				}
			}
			e.emitAudit(ctx, auditEventRefreshReuse, false, userID, "", ErrTokenReuseDetected, nil)
			return nil, ErrTokenReuseDetected
		case errors.Is(err, refresh.ErrExpired):
			e.metricInc(MetricRefreshFailure)
			userID := ""
			if rec != nil {
				userID = rec.UserID
			}
			e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", ErrTokenExpired, func() map[string]string {
				return map[string]string{
					"reason": "token_expired",
				}
			})
			return nil, ErrTokenExpired
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, func() map[string]string {
				return map[string]string{
					"reason": "consume_failed",
				}
			})
			return nil, err
		}
	}

	user, err := e.users.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if _, revErr := e.refreshStore.RevokeAllForUser(ctx, rec.UserID, revokeReasonDisabled); revErr != nil {
			log.Print("authcore: cascade revocation for missing user failed")
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.UserID, "", ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"reason": "user_not_found",
			}
		})
		return nil, ErrUnauthorized
	}
	if user.Disabled() {
		if _, revErr := e.refreshStore.RevokeAllForUser(ctx, rec.UserID, revokeReasonDisabled); revErr != nil {
			log.Print("authcore: cascade revocation for disabled account failed")
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, rec.UserID, "", ErrAccountDisabled, func() map[string]string {
			return map[string]string{
				"reason": "account_disabled",
			}
		})
		return nil, ErrAccountDisabled
	}

	result, err := e.issueTokenPair(ctx, user, "")
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "issue_pair_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, "", nil, nil)

	return result, nil
}

// Authorize validates an access token for resource access: signature and
// expiry, then the revocation ledger, then account state. Pending
// two-factor tokens are rejected by the parser (purpose claim present).
func (e *Engine) Authorize(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthorizeLatency, time.Since(start)) }()
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	// Ledger errors fail closed.
	revoked, err := e.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if revoked {
		e.metricInc(MetricBlacklistHit)
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, claims.Subject, claims.ID, ErrUnauthorized, func() map[string]string {
			return map[string]string{
				"reason": "token_revoked",
			}
		})
		return nil, ErrUnauthorized
	}

	user, err := e.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if user.Disabled() {
		e.emitAudit(ctx, auditEventAuthorizeDenied, false, user.UserID, claims.ID, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	return &AuthResult{
		UserID:  user.UserID,
		Email:   claims.Email,
		TokenID: claims.ID,
	}, nil
}

// Logout revokes one session: the access token's ID goes on the
// revocation ledger for its remaining lifetime and the presented refresh
// token is soft-revoked. Refresh revocation is best-effort; an invalid or
// absent refresh token does not fail the logout.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || e.jwtManager == nil || e.blacklist == nil {
		return ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_access_token",
			}
		})
		return ErrTokenInvalid
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := e.blacklist.Revoke(ctx, claims.ID, claims.Subject, expiresAt); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, claims.Subject, claims.ID, err, nil)
		return err
	}

	if refreshToken != "" && internal.CheckRefreshTokenShape(refreshToken) == nil {
		if err := e.refreshStore.Revoke(ctx, internal.HashRefreshToken(refreshToken), revokeReasonLogout); err != nil {
			log.Print("authcore: refresh revocation on logout failed")
		}
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, claims.ID, nil, nil)
	return nil
}

// LogoutAll revokes every live refresh token belonging to a user.
// Outstanding access tokens are not blacklisted and ride out their short
// TTL; callers needing immediate cutoff should disable the account.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrUserNotFound
	}

	revoked, err := e.refreshStore.RevokeAllForUser(ctx, userID, revokeReasonLogoutAll)
	if err == nil {
		e.metricInc(MetricLogoutAll)
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{
			"revoked": strconv.Itoa(revoked),
		}
	})
	return err
}
