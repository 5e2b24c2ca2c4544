package authcore

import (
	"context"
	"errors"
)

// Register creates a password account. The email is normalized the same
// way Login normalizes it, and the password is hashed before the store
// is touched. Uniqueness is the store's conditional insert: a conflict
// fails with [ErrDuplicateEmail] and nothing is written.
//
// No tokens are issued; the new account logs in through [Engine.Login].
func (e *Engine) Register(ctx context.Context, email, pass string) (UserRecord, error) {
	if e == nil || e.passwordHash == nil || e.users == nil {
		return UserRecord{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		e.emitAudit(ctx, auditEventAccountCreated, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_email",
			}
		})
		return UserRecord{}, ErrInvalidCredentials
	}

	hash, err := e.passwordHash.Hash(pass)
	if err != nil {
		e.emitAudit(ctx, auditEventAccountCreated, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "password_policy",
			}
		})
		return UserRecord{}, err
	}
	pass = ""

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.emitAudit(ctx, auditEventAccountCreated, false, "", "", ErrDuplicateEmail, func() map[string]string {
				return map[string]string{
					"email": email,
				}
			})
			return UserRecord{}, ErrDuplicateEmail
		}
		return UserRecord{}, err
	}

	e.metricInc(MetricUserCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{
			"method": loginMethodPassword,
		}
	})
	return user, nil
}
