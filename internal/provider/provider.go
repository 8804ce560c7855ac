// Package provider is the client for the hosted identity service. All
// credential handling is delegated to it: this application never stores
// passwords or sessions, it only relays the form's submissions and reads
// back the provider's verdict.
package provider

import "context"

// User is the provider's representation of an account.
type User struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at,omitempty"`
}

// Session is the provider-issued proof of authentication. A sign-in is not
// complete until a session is present.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// AuthResult is the success payload of sign-up and password sign-in.
// Either field may be nil: a sign-up that requires email confirmation
// returns a user without a session.
type AuthResult struct {
	User    *User
	Session *Session
}

// Client is the set of provider operations the auth form consumes.
// Implementations return *Error for every failure so callers can feed the
// raw message through the error mapper.
type Client interface {
	// SignUp registers a new account. redirectTo is where the provider's
	// confirmation email sends the user.
	SignUp(ctx context.Context, email, password, redirectTo string) (*AuthResult, error)

	// SignInWithPassword exchanges credentials for a session.
	SignInWithPassword(ctx context.Context, email, password string) (*AuthResult, error)

	// SignInWithOTP asks the provider to email a one-time sign-in link.
	SignInWithOTP(ctx context.Context, email, redirectTo string) error

	// SignInWithOAuth returns the provider's authorize URL for the named
	// OAuth provider; the browser performs the actual redirect.
	SignInWithOAuth(ctx context.Context, oauthProvider, redirectTo string) (string, error)

	// GetSession reconstructs session metadata from an access token,
	// rejecting expired or malformed tokens.
	GetSession(ctx context.Context, accessToken string) (*Session, error)

	// GetUser fetches the account behind an access token.
	GetUser(ctx context.Context, accessToken string) (*User, error)
}
