// Package access defines the authorization oracle and the authenticator the
// SMB1 handlers consult. Both decide; the handlers only ask.
package access

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied is returned when the oracle refuses an operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrWriteProtected is returned for a modification on a read-only share.
	ErrWriteProtected = errors.New("share is read-only")

	// ErrLogonFailure is returned when credentials are rejected.
	ErrLogonFailure = errors.New("logon failure")
)

// Identity is an authenticated session user.
type Identity struct {
	Account string
	Domain  string
	Guest   bool
}

func (i Identity) String() string {
	if i.Domain == "" {
		return i.Account
	}
	return fmt.Sprintf(`%s\%s`, i.Domain, i.Account)
}

// Share describes a share for access decisions.
type Share struct {
	Name      string
	ReadOnly  bool
	GuestOK   bool
	Printable bool
}

// Mode is the access requested by an open.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeExecute
	ModeDelete
)

func (m Mode) String() string {
	s := ""
	for _, f := range []struct {
		bit  Mode
		name string
	}{{ModeRead, "r"}, {ModeWrite, "w"}, {ModeExecute, "x"}, {ModeDelete, "d"}} {
		if m&f.bit != 0 {
			s += f.name
		}
	}
	if s == "" {
		return "-"
	}
	return s
}

// Oracle authorizes operations. Every open, read, write and delete asks
// first.
type Oracle interface {
	CheckTreeConnect(ctx context.Context, id Identity, share Share) error
	CheckOpen(ctx context.Context, id Identity, share Share, path string, mode Mode) error
	CheckRead(ctx context.Context, id Identity, share Share, path string) error
	CheckWrite(ctx context.Context, id Identity, share Share, path string) error
	CheckDelete(ctx context.Context, id Identity, share Share, path string) error
}

// ShareOracle enforces the share configuration: guests only reach guest_ok
// shares and nothing modifies a read-only share.
type ShareOracle struct{}

var _ Oracle = ShareOracle{}

func (ShareOracle) CheckTreeConnect(_ context.Context, id Identity, share Share) error {
	if id.Guest && !share.GuestOK {
		return fmt.Errorf("tree connect %q as guest: %w", share.Name, ErrAccessDenied)
	}
	return nil
}

func (ShareOracle) CheckOpen(_ context.Context, _ Identity, share Share, path string, mode Mode) error {
	if share.ReadOnly && mode&(ModeWrite|ModeDelete) != 0 {
		return fmt.Errorf("open %q for %s: %w", path, mode, ErrWriteProtected)
	}
	return nil
}

func (ShareOracle) CheckRead(context.Context, Identity, Share, string) error {
	return nil
}

func (ShareOracle) CheckWrite(_ context.Context, _ Identity, share Share, path string) error {
	if share.ReadOnly {
		return fmt.Errorf("write %q: %w", path, ErrWriteProtected)
	}
	return nil
}

func (ShareOracle) CheckDelete(_ context.Context, _ Identity, share Share, path string) error {
	if share.ReadOnly {
		return fmt.Errorf("delete %q: %w", path, ErrWriteProtected)
	}
	return nil
}
