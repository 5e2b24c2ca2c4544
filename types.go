package authcore

import (
	"context"
	"time"
)

// UserStore is the interface that callers must implement to integrate
// authcore with their user database. It covers credential lookup, account
// creation, two-factor secret management, OAuth identity linking, and
// login history.
//
// Uniqueness contracts: CreateUser must fail with [ErrDuplicateEmail] on
// an email collision and LinkOAuthIdentity must fail with
// [ErrOAuthIdentityExists] on a (provider, provider ID) collision, both
// enforced atomically in storage. The engine relies on these conditional
// inserts instead of in-process locks, so concurrent callers race safely.
// Email arguments are always pre-normalized (trimmed, lowercased).
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)

	SetTwoFactorSecret(ctx context.Context, userID string, secret []byte) error
	EnableTwoFactor(ctx context.Context, userID string) error
	DisableTwoFactor(ctx context.Context, userID string) error

	GetOAuthIdentity(ctx context.Context, provider, providerID string) (OAuthIdentity, error)
	LinkOAuthIdentity(ctx context.Context, identity OAuthIdentity) error
	UnlinkOAuthIdentity(ctx context.Context, userID, provider string) error

	AppendLoginHistory(ctx context.Context, entry LoginHistoryEntry) error
}

// UserRecord is the account record returned by [UserStore]. A zero
// DisabledAt means the account is active. An empty PasswordHash marks an
// OAuth-only account. TwoFactorSecret may be set while TwoFactorEnabled
// is still false: the secret is provisioned but not yet confirmed.
type UserRecord struct {
	UserID           string
	Email            string
	PasswordHash     string
	DisabledAt       time.Time
	TwoFactorSecret  []byte
	TwoFactorEnabled bool
	EmailVerifiedAt  time.Time
}

// Disabled reports whether the account is disabled.
func (u UserRecord) Disabled() bool {
	return !u.DisabledAt.IsZero()
}

// CreateUserInput is the input for [UserStore.CreateUser]. PasswordHash
// is empty for accounts created through an OAuth callback.
type CreateUserInput struct {
	Email           string
	PasswordHash    string
	EmailVerifiedAt time.Time
}

// OAuthIdentity links an external (provider, provider ID) pair to a user.
type OAuthIdentity struct {
	Provider   string
	ProviderID string
	UserID     string
}

// OAuthInput carries a pre-verified OAuth callback profile into
// [Engine.OAuthLogin]. Provider token exchange happens upstream.
type OAuthInput struct {
	Provider   string
	ProviderID string
	Email      string
}

// LoginHistoryEntry records one successful authentication. Method is
// "password", "oauth", or "2fa".
type LoginHistoryEntry struct {
	UserID    string
	Method    string
	IP        string
	UserAgent string
	At        time.Time
}

// LoginResult is returned by [Engine.Login], [Engine.OAuthLogin], and
// [Engine.ConfirmTwoFactorLogin]. When TwoFactorRequired is true the
// token fields are empty and PendingToken carries the short-lived
// handshake token to present to ConfirmTwoFactorLogin.
type LoginResult struct {
	AccessToken  string
	RefreshToken string

	TwoFactorRequired bool
	PendingToken      string
}

// AuthResult is returned by [Engine.Authorize] for a valid, unrevoked
// access token belonging to an active account.
type AuthResult struct {
	UserID  string
	Email   string
	TokenID string
}

// TOTPProvision holds the base32 secret and otpauth:// URI returned by
// [Engine.ProvisionTOTP], ready for QR encoding by the caller.
type TOTPProvision struct {
	Secret string
	URI    string
}
