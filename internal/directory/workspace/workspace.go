// Package workspace implements directory.Provider for Google Workspace using
// a service account with domain-wide delegation. Directory calls impersonate
// the configured admin; Gmail settings calls impersonate the target user.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/version"
	"reactivatetool/internal/directory"
)

const defaultCustomer = "my_customer"

var (
	directoryScopes = []string{admin.AdminDirectoryUserScope, admin.AdminDirectoryGroupMemberScope}
	gmailScopes     = []string{gmail.GmailSettingsBasicScope, gmail.GmailSettingsSharingScope}
)

// clientOptions returns the API client options for calls made as subject.
type clientOptions func(ctx context.Context, subject string, scopes []string) ([]option.ClientOption, error)

// Config selects the Workspace tenant.
type Config struct {
	AdminSubject string
	// Customer defaults to my_customer, the admin's own account.
	Customer string
}

// Provider is the Google Workspace directory.Provider.
type Provider struct {
	cfg     Config
	log     *slog.Logger
	options clientOptions
	dir     *admin.Service
}

var _ directory.Provider = (*Provider)(nil)

// New reads the service account key at credentialsPath.
func New(credentialsPath string, cfg Config, log *slog.Logger) (*Provider, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account key: %w", err)
	}
	return NewFromJSON(data, cfg, log)
}

// NewFromJSON builds a provider from service account key material.
func NewFromJSON(credentialsJSON []byte, cfg Config, log *slog.Logger) (*Provider, error) {
	var key struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(credentialsJSON, &key); err != nil {
		return nil, fmt.Errorf("invalid service account key: %w", err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("invalid service account key: type is %q, want service_account", key.Type)
	}
	opts := func(ctx context.Context, subject string, scopes []string) ([]option.ClientOption, error) {
		cred, err := google.CredentialsFromJSONWithParams(ctx, credentialsJSON, google.CredentialsParams{
			Scopes:  scopes,
			Subject: subject,
		})
		if err != nil {
			return nil, fmt.Errorf("service account credentials for %s: %w", subject, err)
		}
		return []option.ClientOption{option.WithCredentials(cred), option.WithUserAgent(version.UserAgent())}, nil
	}
	return newWithOptions(cfg, log, opts), nil
}

func newWithOptions(cfg Config, log *slog.Logger, opts clientOptions) *Provider {
	if cfg.Customer == "" {
		cfg.Customer = defaultCustomer
	}
	return &Provider{cfg: cfg, log: logger.OrDiscard(log), options: opts}
}

func (p *Provider) Name() string { return "google" }

// Connect builds the Directory service as the admin and lists one user.
func (p *Provider) Connect(ctx context.Context) error {
	opts, err := p.options(ctx, p.cfg.AdminSubject, directoryScopes)
	if err != nil {
		return err
	}
	svc, err := admin.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("directory service initialization failed: %w", err)
	}
	if _, err := svc.Users.List().Customer(p.cfg.Customer).MaxResults(1).Context(ctx).Do(); err != nil {
		return describe(err, "list users")
	}
	p.dir = svc
	p.log.Info("Connected to Google Workspace", "customer", p.cfg.Customer, "admin", p.cfg.AdminSubject)
	return nil
}

func (p *Provider) directory() (*admin.Service, error) {
	if p.dir == nil {
		return nil, fmt.Errorf("google workspace provider is not connected")
	}
	return p.dir, nil
}

func (p *Provider) FindUser(ctx context.Context, email string) (*directory.User, error) {
	svc, err := p.directory()
	if err != nil {
		return nil, err
	}
	u, err := svc.Users.Get(email).Context(ctx).Do()
	if err != nil {
		if isStatus(err, 404) {
			return nil, fmt.Errorf("%w: %s", directory.ErrUserNotFound, email)
		}
		return nil, describe(err, "get user")
	}
	out := &directory.User{
		ID:           u.Id,
		Email:        u.PrimaryEmail,
		Enabled:      !u.Suspended,
		EmployeeType: primaryOrgDescription(u.Organizations),
	}
	if u.Name != nil {
		out.DisplayName = u.Name.FullName
		if out.DisplayName == "" {
			out.DisplayName = strings.TrimSpace(u.Name.GivenName + " " + u.Name.FamilyName)
		}
	}
	return out, nil
}

// EnableUser lifts the suspension. The employee type is stored as the
// description of the primary organization, which the admin console shows as
// "Employee type". The organizations list is replaced as a whole on update,
// so the current entries are read back and only that description changes.
func (p *Provider) EnableUser(ctx context.Context, user *directory.User, employeeType string) error {
	svc, err := p.directory()
	if err != nil {
		return err
	}
	update := &admin.User{Suspended: false, ForceSendFields: []string{"Suspended"}}
	if employeeType != "" {
		current, err := svc.Users.Get(user.ID).Fields("organizations").Context(ctx).Do()
		if err != nil {
			return describe(err, "read user organizations")
		}
		if orgs, changed := withEmployeeType(current.Organizations, employeeType); changed {
			update.Organizations = orgs
		}
	}
	if _, err := svc.Users.Update(user.ID, update).Context(ctx).Do(); err != nil {
		return describe(err, "enable user")
	}
	user.Enabled = true
	if employeeType != "" {
		user.EmployeeType = employeeType
	}
	return nil
}

func (p *Provider) ResetPassword(ctx context.Context, user *directory.User, password string, forceChange bool) error {
	svc, err := p.directory()
	if err != nil {
		return err
	}
	update := &admin.User{
		Password:                  password,
		ChangePasswordAtNextLogin: forceChange,
		ForceSendFields:           []string{"ChangePasswordAtNextLogin"},
	}
	if _, err := svc.Users.Update(user.ID, update).Context(ctx).Do(); err != nil {
		return describe(err, "reset password")
	}
	return nil
}

// ClearMailboxRestrictions maps the mailbox options onto Gmail settings and
// the global address list flag. Protocol and mailbox-type options have no
// Workspace counterpart and are reported as not applicable.
func (p *Provider) ClearMailboxRestrictions(ctx context.Context, user *directory.User, opts directory.MailboxOptions) ([]string, error) {
	var changes []string
	var errs []error

	if opts.Unhide {
		if err := p.showInAddressList(ctx, user); err != nil {
			errs = append(errs, err)
		} else {
			changes = append(changes, "shown in global address list")
		}
	}

	if opts.DisableAutoReply || opts.ClearForwarding {
		gm, err := p.gmailAs(ctx, user.Email)
		if err != nil {
			return changes, errors.Join(append(errs, err)...)
		}
		if opts.DisableAutoReply {
			vacation := &gmail.VacationSettings{EnableAutoReply: false, ForceSendFields: []string{"EnableAutoReply"}}
			if _, err := gm.Users.Settings.UpdateVacation("me", vacation).Context(ctx).Do(); err != nil {
				errs = append(errs, mailboxError(err, "disable vacation responder", user.Email))
			} else {
				changes = append(changes, "vacation responder disabled")
			}
		}
		if opts.ClearForwarding {
			fwd := &gmail.AutoForwarding{Enabled: false, ForceSendFields: []string{"Enabled"}}
			if _, err := gm.Users.Settings.UpdateAutoForwarding("me", fwd).Context(ctx).Do(); err != nil {
				errs = append(errs, mailboxError(err, "disable auto-forwarding", user.Email))
			} else {
				changes = append(changes, "auto-forwarding disabled")
			}
		}
	}

	if opts.EnableProtocols {
		changes = append(changes, "client protocols: not applicable")
	}
	if opts.ConvertToRegular {
		changes = append(changes, "mailbox type: not applicable")
	}
	return changes, errors.Join(errs...)
}

func (p *Provider) showInAddressList(ctx context.Context, user *directory.User) error {
	svc, err := p.directory()
	if err != nil {
		return err
	}
	update := &admin.User{IncludeInGlobalAddressList: true}
	if _, err := svc.Users.Update(user.ID, update).Context(ctx).Do(); err != nil {
		return describe(err, "show in global address list")
	}
	return nil
}

func (p *Provider) gmailAs(ctx context.Context, subject string) (*gmail.Service, error) {
	opts, err := p.options(ctx, subject, gmailScopes)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service initialization failed: %w", err)
	}
	return svc, nil
}

// AddGroupMember inserts user into group (email or id) with role MEMBER.
func (p *Provider) AddGroupMember(ctx context.Context, user *directory.User, group string) error {
	svc, err := p.directory()
	if err != nil {
		return err
	}
	member := &admin.Member{Email: user.Email, Role: "MEMBER"}
	if _, err := svc.Members.Insert(group, member).Context(ctx).Do(); err != nil {
		switch {
		case isStatus(err, 409):
			return fmt.Errorf("%s: %w", group, directory.ErrAlreadyMember)
		case isStatus(err, 404):
			return fmt.Errorf("%s: %w", group, directory.ErrGroupNotFound)
		}
		return describe(err, "add group member "+group)
	}
	return nil
}

// AssignLicenses is not supported; Workspace licences are managed through
// the Enterprise License Manager, outside this tool's scopes.
func (p *Provider) AssignLicenses(ctx context.Context, user *directory.User, skus []string) error {
	if len(skus) == 0 {
		return nil
	}
	return fmt.Errorf("licence assignment: %w", directory.ErrNotSupported)
}

// RevokeSessions signs the user out of every web and device session.
func (p *Provider) RevokeSessions(ctx context.Context, user *directory.User) error {
	svc, err := p.directory()
	if err != nil {
		return err
	}
	if err := svc.Users.SignOut(user.ID).Context(ctx).Do(); err != nil {
		return describe(err, "sign out user")
	}
	return nil
}

// IsRetryable classifies errors returned by this provider for retry.Do.
func (p *Provider) IsRetryable(err error) bool { return IsRetryable(err) }

// primaryOrgDescription extracts the primary organization description from the
// loosely typed organizations field.
// withEmployeeType sets the description of the primary organization (the
// first one when none is primary) and keeps every other field and entry.
// changed is false when the description already matches.
func withEmployeeType(orgs interface{}, employeeType string) (list []map[string]any, changed bool) {
	if orgs != nil {
		if data, err := json.Marshal(orgs); err == nil {
			_ = json.Unmarshal(data, &list)
		}
	}
	if len(list) == 0 {
		return []map[string]any{{"description": employeeType, "primary": true}}, true
	}
	target := list[0]
	for _, o := range list {
		if primary, _ := o["primary"].(bool); primary {
			target = o
			break
		}
	}
	if d, _ := target["description"].(string); d == employeeType {
		return list, false
	}
	target["description"] = employeeType
	return list, true
}

func primaryOrgDescription(orgs interface{}) string {
	if orgs == nil {
		return ""
	}
	data, err := json.Marshal(orgs)
	if err != nil {
		return ""
	}
	var list []admin.UserOrganization
	if err := json.Unmarshal(data, &list); err != nil {
		return ""
	}
	for _, o := range list {
		if o.Primary {
			return o.Description
		}
	}
	if len(list) > 0 {
		return list[0].Description
	}
	return ""
}
