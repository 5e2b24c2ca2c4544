package authcore

import (
	"context"
	"errors"
	"time"
)

// OAuthLogin resolves a verified provider identity to a local account and
// logs it in. Resolution is idempotent under concurrency:
//
//  1. A linked identity wins immediately.
//  2. Otherwise the provider email is matched to an existing account and
//     the identity is linked to it. A concurrent linker losing the
//     conditional insert re-reads the winner's link.
//  3. Otherwise a new account is created from the provider profile. A
//     concurrent creator losing the unique-email insert re-reads the
//     winner's account and links to that.
//
// Accounts created here have no password; they authenticate through the
// provider until a password is set out of band. Two-factor, when enabled
// on the resolved account, still gates the login.
func (e *Engine) OAuthLogin(ctx context.Context, input OAuthInput) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	if input.Provider == "" || input.ProviderID == "" {
		e.emitAudit(ctx, auditEventOAuthLoginFailure, false, "", "", ErrOAuthIdentityNotFound, nil)
		return nil, ErrOAuthIdentityNotFound
	}

	user, err := e.resolveOAuthUser(ctx, input)
	if err != nil {
		e.emitAudit(ctx, auditEventOAuthLoginFailure, false, "", "", err, func() map[string]string {
			return map[string]string{
				"provider": input.Provider,
			}
		})
		return nil, err
	}

	if user.Disabled() {
		e.emitAudit(ctx, auditEventOAuthLoginFailure, false, user.UserID, "", ErrAccountDisabled, func() map[string]string {
			return map[string]string{
				"provider": input.Provider,
			}
		})
		return nil, ErrAccountDisabled
	}

	result, err := e.finishLogin(ctx, user, loginMethodOAuth)
	if err != nil {
		return nil, err
	}
	if !result.TwoFactorRequired {
		e.metricInc(MetricOAuthLoginSuccess)
		e.emitAudit(ctx, auditEventOAuthLoginSuccess, true, user.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"provider": input.Provider,
			}
		})
	}
	return result, nil
}

func (e *Engine) resolveOAuthUser(ctx context.Context, input OAuthInput) (UserRecord, error) {
	identity, err := e.users.GetOAuthIdentity(ctx, input.Provider, input.ProviderID)
	if err == nil {
		return e.users.GetUserByID(ctx, identity.UserID)
	}
	if !errors.Is(err, ErrOAuthIdentityNotFound) {
		return UserRecord{}, err
	}

	email := normalizeEmail(input.Email)
	if email == "" {
		return UserRecord{}, ErrOAuthEmailMissing
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		// Existing account, first login through this provider.
	case errors.Is(err, ErrUserNotFound):
		user, err = e.createOAuthUser(ctx, email)
		if err != nil {
			return UserRecord{}, err
		}
	default:
		return UserRecord{}, err
	}

	return e.linkIdentity(ctx, user, input)
}

// createOAuthUser inserts a passwordless account. Losing the unique-email
// race to a concurrent creator is not an error: the winner's account is
// re-read and used.
func (e *Engine) createOAuthUser(ctx context.Context, email string) (UserRecord, error) {
	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:           email,
		EmailVerifiedAt: time.Now(),
	})
	if err == nil {
		e.metricInc(MetricUserCreated)
		e.emitAudit(ctx, auditEventAccountCreated, true, user.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"method": loginMethodOAuth,
			}
		})
		return user, nil
	}
	if errors.Is(err, ErrDuplicateEmail) {
		return e.users.GetUserByEmail(ctx, email)
	}
	return UserRecord{}, err
}

// linkIdentity conditionally inserts the provider link. Losing the race
// to a concurrent linker re-reads the winning link; a link pointing at a
// different account means the provider identity already belongs to
// someone else and the login fails.
func (e *Engine) linkIdentity(ctx context.Context, user UserRecord, input OAuthInput) (UserRecord, error) {
	err := e.users.LinkOAuthIdentity(ctx, OAuthIdentity{
		Provider:   input.Provider,
		ProviderID: input.ProviderID,
		UserID:     user.UserID,
	})
	if err == nil {
		e.metricInc(MetricOAuthLinkCreated)
		e.emitAudit(ctx, auditEventOAuthLinkCreated, true, user.UserID, "", nil, func() map[string]string {
			return map[string]string{
				"provider": input.Provider,
			}
		})
		return user, nil
	}
	if !errors.Is(err, ErrOAuthIdentityExists) {
		return UserRecord{}, err
	}

	identity, err := e.users.GetOAuthIdentity(ctx, input.Provider, input.ProviderID)
	if err != nil {
		return UserRecord{}, err
	}
	if identity.UserID != user.UserID {
		return UserRecord{}, ErrOAuthIdentityExists
	}
	return user, nil
}

// UnlinkProvider removes a provider link from a user's account. The
// account must have a password: unlinking the only credential would
// strand the user, so passwordless accounts get [ErrNoPasswordSet].
func (e *Engine) UnlinkProvider(ctx context.Context, userID, provider string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}
	if user.PasswordHash == "" {
		e.emitAudit(ctx, auditEventOAuthUnlinked, false, userID, "", ErrNoPasswordSet, func() map[string]string {
			return map[string]string{
				"provider": provider,
			}
		})
		return ErrNoPasswordSet
	}

	if err := e.users.UnlinkOAuthIdentity(ctx, userID, provider); err != nil {
		if errors.Is(err, ErrOAuthIdentityNotFound) {
			return ErrOAuthIdentityNotFound
		}
		return err
	}

	e.emitAudit(ctx, auditEventOAuthUnlinked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"provider": provider,
		}
	})
	return nil
}
