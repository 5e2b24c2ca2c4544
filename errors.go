package authcore

import "errors"

var (
	// ErrUnauthorized is returned when an access token fails validation for
	// any reason the caller does not need to distinguish.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for unknown users, wrong passwords,
	// and password logins against accounts with no password set.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by UserStore implementations when no user
	// matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountDisabled is returned when an authenticated operation targets
	// a disabled account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrTokenInvalid is returned when a token is malformed or its signature
	// does not verify.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenNotFound is returned when a presented refresh token has no
	// stored record.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired is returned when a presented refresh token is past its
	// expiry.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrTokenReuseDetected is returned when an already-rotated refresh
	// token is presented again; all of the owner's tokens are revoked.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrTwoFactorRequired is returned by login paths when the account has
	// two-factor enabled and a pending token was issued instead of a pair.
	ErrTwoFactorRequired = errors.New("two-factor confirmation required")
	// ErrTwoFactorNotConfigured is returned when a two-factor operation
	// targets an account without a provisioned secret.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
	// ErrTwoFactorAlreadyEnabled is returned when provisioning is attempted
	// on an account with two-factor already confirmed.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorInvalidCode is returned when a TOTP code does not match
	// within the accepted skew window.
	ErrTwoFactorInvalidCode = errors.New("invalid two-factor code")
	// ErrOAuthEmailMissing is returned when an OAuth callback arrives
	// without an email address.
	ErrOAuthEmailMissing = errors.New("oauth profile has no email")
	// ErrOAuthIdentityNotFound is returned when unlinking a provider that is
	// not linked to the account.
	ErrOAuthIdentityNotFound = errors.New("oauth identity not found")
	// ErrOAuthIdentityExists is returned by UserStore implementations when a
	// (provider, provider ID) pair is already linked.
	ErrOAuthIdentityExists = errors.New("oauth identity already linked")
	// ErrDuplicateEmail is returned by UserStore implementations when a
	// create collides with an existing email (case-insensitive).
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrNoPasswordSet is returned when an operation requires password
	// confirmation but the account has no password hash.
	ErrNoPasswordSet = errors.New("no password set on account")
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or with nil dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
