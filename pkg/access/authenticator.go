package access

import (
	"context"
	"strings"
)

// Credentials are the fields of a SESSION_SETUP_ANDX request.
type Credentials struct {
	Account  string
	Domain   string
	Password []byte
	NativeOS string
}

// Authenticator validates session setup credentials.
//
// Thread safety: implementations must be safe for concurrent use.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
}

// GuestAuthenticator maps every session to the guest account. An empty
// account name (anonymous logon) is accepted as well.
type GuestAuthenticator struct {
	// Account is the name reported for guest sessions. Defaults to "guest".
	Account string
}

var _ Authenticator = GuestAuthenticator{}

func (g GuestAuthenticator) Authenticate(_ context.Context, creds Credentials) (Identity, error) {
	account := g.Account
	if account == "" {
		account = "guest"
	}
	return Identity{
		Account: account,
		Domain:  strings.ToUpper(creds.Domain),
		Guest:   true,
	}, nil
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, creds Credentials) (Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	return f(ctx, creds)
}
