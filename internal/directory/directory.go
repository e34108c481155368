// Package directory defines the contract the reactivation runner uses to
// talk to a cloud directory and its mailboxes. Implementations live in the
// entra (Microsoft 365) and workspace (Google Workspace) subpackages.
package directory

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrAlreadyMember = errors.New("user is already a member")
	ErrGroupNotFound = errors.New("group not found")
	ErrNotSupported  = errors.New("not supported by this provider")
	ErrNoMailbox     = errors.New("user has no mailbox")
)

// User is the directory's view of a person, as returned by FindUser.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName,omitempty"`
	Enabled      bool   `json:"enabled"`
	EmployeeType string `json:"employeeType,omitempty"`
	// MailboxType is the Exchange RecipientTypeDetails (UserMailbox,
	// SharedMailbox, ...). Empty for providers without that notion.
	MailboxType string `json:"mailboxType,omitempty"`
}

// MailboxOptions selects which mailbox restrictions to lift.
type MailboxOptions struct {
	Unhide           bool
	EnableProtocols  bool
	ClearForwarding  bool
	DisableAutoReply bool
	ConvertToRegular bool
}

// Any reports whether at least one option is set.
func (o MailboxOptions) Any() bool {
	return o.Unhide || o.EnableProtocols || o.ClearForwarding || o.DisableAutoReply || o.ConvertToRegular
}

// Provider performs one-shot directory operations. Every method is a single
// remote call (or a short fixed sequence of them) and is safe to retry.
type Provider interface {
	Name() string
	// Connect authenticates and performs a cheap read to prove access.
	Connect(ctx context.Context) error
	FindUser(ctx context.Context, email string) (*User, error)
	EnableUser(ctx context.Context, user *User, employeeType string) error
	ResetPassword(ctx context.Context, user *User, password string, forceChange bool) error
	// ClearMailboxRestrictions returns a short description of each change made.
	ClearMailboxRestrictions(ctx context.Context, user *User, opts MailboxOptions) ([]string, error)
	AddGroupMember(ctx context.Context, user *User, group string) error
	AssignLicenses(ctx context.Context, user *User, skus []string) error
	RevokeSessions(ctx context.Context, user *User) error
}

// IsWarning reports whether err describes a condition that leaves the
// user in the desired state or cannot be acted on by this provider.
// A joined error is a warning only when every error in it is.
func IsWarning(err error) bool {
	for err != nil {
		if err == ErrAlreadyMember || err == ErrNotSupported || err == ErrNoMailbox {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			errs := joined.Unwrap()
			if len(errs) == 0 {
				return false
			}
			for _, e := range errs {
				if !IsWarning(e) {
					return false
				}
			}
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
