package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLoginTwoFactor      = "login_two_factor_required"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuse        = "refresh_reuse_detected"
	auditEventLogoutSession       = "logout_session"
	auditEventLogoutAll           = "logout_all"
	auditEventAuthorizeDenied     = "authorize_denied"
	auditEventTwoFactorProvision  = "two_factor_provisioned"
	auditEventTwoFactorEnabled    = "two_factor_enabled"
	auditEventTwoFactorDisabled   = "two_factor_disabled"
	auditEventTwoFactorSuccess    = "two_factor_success"
	auditEventTwoFactorFailure    = "two_factor_failure"
	auditEventOAuthLoginSuccess   = "oauth_login_success"
	auditEventOAuthLoginFailure   = "oauth_login_failure"
	auditEventOAuthLinkCreated    = "oauth_link_created"
	auditEventOAuthUnlinked       = "oauth_unlinked"
	auditEventAccountCreated      = "account_created"
)

// AuditErrorCode is a stable, low-cardinality error label attached to
// audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized        AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound        AuditErrorCode = "user_not_found"
	auditErrAccountDisabled     AuditErrorCode = "account_disabled"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrTokenNotFound       AuditErrorCode = "token_not_found"
	auditErrTokenExpired        AuditErrorCode = "token_expired"
	auditErrTokenReuse          AuditErrorCode = "token_reuse"
	auditErrTwoFactorRequired   AuditErrorCode = "two_factor_required"
	auditErrTwoFactorInvalid    AuditErrorCode = "two_factor_invalid"
	auditErrTwoFactorState      AuditErrorCode = "two_factor_state"
	auditErrOAuthEmailMissing   AuditErrorCode = "oauth_email_missing"
	auditErrOAuthNotLinked      AuditErrorCode = "oauth_not_linked"
	auditErrDuplicateEmail      AuditErrorCode = "duplicate_email"
	auditErrNoPasswordSet       AuditErrorCode = "no_password_set"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tokenID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TokenID:   tokenID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenNotFound):
		return auditErrTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenReuseDetected):
		return auditErrTokenReuse
	case errors.Is(err, ErrTwoFactorRequired):
		return auditErrTwoFactorRequired
	case errors.Is(err, ErrTwoFactorInvalidCode):
		return auditErrTwoFactorInvalid
	case errors.Is(err, ErrTwoFactorNotConfigured),
		errors.Is(err, ErrTwoFactorAlreadyEnabled):
		return auditErrTwoFactorState
	case errors.Is(err, ErrOAuthEmailMissing):
		return auditErrOAuthEmailMissing
	case errors.Is(err, ErrOAuthIdentityNotFound):
		return auditErrOAuthNotLinked
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicateEmail
	case errors.Is(err, ErrNoPasswordSet):
		return auditErrNoPasswordSet
	default:
		return auditErrInternal
	}
}
