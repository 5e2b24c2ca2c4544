package authcore

import (
	"context"
	"time"
)

// ProvisionTOTP generates a new TOTP secret for a user and stores it in
// an unconfirmed state. The returned provisioning URI is suitable for a
// QR code. Calling this again before confirmation replaces the pending
// secret; calling it after two-factor is enabled fails with
// [ErrTwoFactorAlreadyEnabled].
func (e *Engine) ProvisionTOTP(ctx context.Context, userID string) (*TOTPProvision, error) {
	if e == nil || e.totp == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if user.TwoFactorEnabled {
		e.emitAudit(ctx, auditEventTwoFactorProvision, false, userID, "", ErrTwoFactorAlreadyEnabled, nil)
		return nil, ErrTwoFactorAlreadyEnabled
	}

	secret, encoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := e.users.SetTwoFactorSecret(ctx, userID, secret); err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditEventTwoFactorProvision, true, userID, "", nil, nil)

	return &TOTPProvision{
		Secret: encoded,
		URI:    e.totp.ProvisionURI(encoded, user.Email),
	}, nil
}

// ConfirmTOTP activates two-factor for a user by proving possession of
// the provisioned secret with a current code. Requires a prior
// [Engine.ProvisionTOTP]; fails with [ErrTwoFactorNotConfigured] when no
// secret is stored. Confirming an already-enabled account with a valid
// code is a no-op, so a client retrying a successful confirm does not
// see an error.
func (e *Engine) ConfirmTOTP(ctx context.Context, userID, code string) error {
	if e == nil || e.totp == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}
	if len(user.TwoFactorSecret) == 0 {
		return ErrTwoFactorNotConfigured
	}

	ok, err := e.totp.VerifyCode(user.TwoFactorSecret, code, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, userID, "", ErrTwoFactorInvalidCode, func() map[string]string {
			return map[string]string{
				"phase": "confirm",
			}
		})
		return ErrTwoFactorInvalidCode
	}

	if user.TwoFactorEnabled {
		// Retry of a confirm that already succeeded; nothing to write.
		return nil
	}

	if err := e.users.EnableTwoFactor(ctx, userID); err != nil {
		return err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, userID, "", nil, nil)
	return nil
}

// ConfirmTwoFactorLogin completes the login handshake: it exchanges the
// pending token from [Engine.Login] plus a valid TOTP code for a full
// token pair. The pending token authorizes nothing else and expires on
// its own short TTL.
func (e *Engine) ConfirmTwoFactorLogin(ctx context.Context, pendingToken, code string) (*LoginResult, error) {
	if e == nil || e.jwtManager == nil || e.totp == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParsePending(pendingToken)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"phase": "pending_token",
			}
		})
		return nil, ErrTokenInvalid
	}

	user, err := e.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, claims.Subject, "", ErrUserNotFound, nil)
		return nil, ErrUnauthorized
	}
	if user.Disabled() {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.UserID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	if !user.TwoFactorEnabled || len(user.TwoFactorSecret) == 0 {
		return nil, ErrTwoFactorNotConfigured
	}

	ok, err := e.totp.VerifyCode(user.TwoFactorSecret, code, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, user.UserID, "", ErrTwoFactorInvalidCode, func() map[string]string {
			return map[string]string{
				"phase": "login",
			}
		})
		return nil, ErrTwoFactorInvalidCode
	}

	result, err := e.issueTokenPair(ctx, user, loginMethodTwoFactor)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"method": loginMethodTwoFactor,
		}
	})
	return result, nil
}

// DisableTwoFactor turns two-factor off for a user. It requires the
// account password as step-up proof; accounts without a password (OAuth
// only) cannot disable this way and get [ErrNoPasswordSet].
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, pass string) error {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}
	if user.PasswordHash == "" {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, userID, "", ErrNoPasswordSet, nil)
		return ErrNoPasswordSet
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, userID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	pass = ""

	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotConfigured
	}

	if err := e.users.DisableTwoFactor(ctx, userID); err != nil {
		return err
	}

	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, userID, "", nil, nil)
	return nil
}
