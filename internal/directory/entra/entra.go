// Package entra implements directory.Provider for Microsoft Entra ID and
// Exchange Online. User, group, licence and session operations go through
// Microsoft Graph; mailbox restrictions that Graph does not expose go through
// the Exchange Online admin API.
package entra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/retry"
	"reactivatetool/internal/common/validation"
	"reactivatetool/internal/directory"
)

// Config carries the tenant-level settings the provider needs.
type Config struct {
	TenantID string
	// Organization is the tenant's primary domain (contoso.onmicrosoft.com).
	// Without it the Exchange admin API is not used.
	Organization  string
	UsageLocation string
	Exchange      *ExchangeOptions
}

// Provider is the Microsoft 365 directory.Provider.
type Provider struct {
	graph graphAPI
	exo   exchangeAPI
	cfg   Config
	log   *slog.Logger

	groupIDs map[string]string
}

// exchangeAPI is implemented by *ExchangeClient.
type exchangeAPI interface {
	AcceptedDomains(ctx context.Context) ([]string, error)
	GetMailbox(ctx context.Context, identity string) (*Mailbox, error)
	SetMailbox(ctx context.Context, identity string, params map[string]any) error
	EnableClientProtocols(ctx context.Context, identity string) error
}

var _ directory.Provider = (*Provider)(nil)

// New builds a provider on top of cred. No network call is made until Connect.
func New(cred azcore.TokenCredential, cfg Config, log *slog.Logger) (*Provider, error) {
	g, err := newSDKGraph(cred)
	if err != nil {
		return nil, err
	}
	p := &Provider{graph: g, cfg: cfg, log: logger.OrDiscard(log), groupIDs: map[string]string{}}
	if cfg.Organization != "" {
		exo, err := NewExchangeClient(cred, cfg.TenantID, cfg.Organization, cfg.Exchange)
		if err != nil {
			return nil, err
		}
		p.exo = exo
	}
	return p, nil
}

func newWithClients(g graphAPI, exo exchangeAPI, cfg Config, log *slog.Logger) *Provider {
	return &Provider{graph: g, exo: exo, cfg: cfg, log: logger.OrDiscard(log), groupIDs: map[string]string{}}
}

func (p *Provider) Name() string { return "microsoft" }

// Connect reads the organization through Graph and, when configured, lists
// the accepted domains through the Exchange admin API. Both calls acquire a
// token, so a bad credential fails here.
func (p *Provider) Connect(ctx context.Context) error {
	name, err := p.graph.organizationName(ctx)
	if err != nil {
		var authErr *azidentity.AuthenticationFailedError
		if errors.As(err, &authErr) {
			// The same credentials will fail again.
			return retry.Permanent(fmt.Errorf("connect to Microsoft Graph: %w", err))
		}
		return enrichGraphAPIError(err, p.log, "connect to Microsoft Graph")
	}
	p.log.Info("Connected to Microsoft Graph", "organization", name)

	if p.exo == nil {
		p.log.Debug("Exchange admin API not configured; mailbox cmdlets unavailable")
		return nil
	}
	domains, err := p.exo.AcceptedDomains(ctx)
	if err != nil {
		return fmt.Errorf("connect to Exchange Online: %w", err)
	}
	p.log.Info("Connected to Exchange Online", "organization", p.cfg.Organization, "acceptedDomains", len(domains))
	return nil
}

// FindUser looks the user up by UPN or mail.
func (p *Provider) FindUser(ctx context.Context, email string) (*directory.User, error) {
	u, err := p.graph.getUser(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", directory.ErrUserNotFound, email)
		}
		return nil, enrichGraphAPIError(err, p.log, "get user")
	}
	return u, nil
}

// EnableUser sets accountEnabled, and employeeType and usageLocation when known.
func (p *Provider) EnableUser(ctx context.Context, user *directory.User, employeeType string) error {
	enabled := true
	patch := userPatch{AccountEnabled: &enabled}
	if employeeType != "" {
		patch.EmployeeType = &employeeType
	}
	if p.cfg.UsageLocation != "" {
		loc := strings.ToUpper(p.cfg.UsageLocation)
		patch.UsageLocation = &loc
	}
	if err := p.graph.patchUser(ctx, user.ID, patch); err != nil {
		return enrichGraphAPIError(err, p.log, "enable user")
	}
	user.Enabled = true
	if employeeType != "" {
		user.EmployeeType = employeeType
	}
	return nil
}

func (p *Provider) ResetPassword(ctx context.Context, user *directory.User, password string, forceChange bool) error {
	if err := p.graph.patchUser(ctx, user.ID, userPatch{Password: &password, ForceChange: forceChange}); err != nil {
		return enrichGraphAPIError(err, p.log, "reset password")
	}
	return nil
}

// ClearMailboxRestrictions applies the selected mailbox options. Exchange
// changes are skipped when the mailbox already has the wanted state. Each
// option is attempted even when an earlier one fails; the errors are joined.
func (p *Provider) ClearMailboxRestrictions(ctx context.Context, user *directory.User, opts directory.MailboxOptions) ([]string, error) {
	var changes []string
	var errs []error

	needsExchange := opts.ConvertToRegular || opts.Unhide || opts.ClearForwarding || opts.EnableProtocols
	if needsExchange {
		if p.exo == nil {
			errs = append(errs, fmt.Errorf("exchange mailbox options need an organization: %w", directory.ErrNotSupported))
		} else {
			c, err := p.clearExchange(ctx, user, opts)
			changes = append(changes, c...)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	if opts.DisableAutoReply {
		if err := p.graph.disableAutoReply(ctx, user.ID); err != nil {
			errs = append(errs, enrichGraphAPIError(err, p.log, "disable automatic replies"))
		} else {
			changes = append(changes, "automatic replies disabled")
		}
	}
	return changes, errors.Join(errs...)
}

func (p *Provider) clearExchange(ctx context.Context, user *directory.User, opts directory.MailboxOptions) ([]string, error) {
	identity := user.Email
	mbx, err := p.exo.GetMailbox(ctx, identity)
	if err != nil {
		return nil, err
	}
	user.MailboxType = mbx.RecipientTypeDetails

	var changes []string
	var errs []error

	if opts.ConvertToRegular && mbx.IsShared() {
		if err := p.exo.SetMailbox(ctx, identity, map[string]any{"Type": "Regular"}); err != nil {
			errs = append(errs, fmt.Errorf("convert to regular mailbox: %w", err))
		} else {
			user.MailboxType = "UserMailbox"
			changes = append(changes, "converted to regular mailbox")
		}
	}
	if opts.Unhide && mbx.HiddenFromAddressListsEnabled {
		if err := p.exo.SetMailbox(ctx, identity, map[string]any{"HiddenFromAddressListsEnabled": false}); err != nil {
			errs = append(errs, fmt.Errorf("unhide from address lists: %w", err))
		} else {
			changes = append(changes, "shown in address lists")
		}
	}
	if opts.ClearForwarding && mbx.HasForwarding() {
		err := p.exo.SetMailbox(ctx, identity, map[string]any{
			"ForwardingSmtpAddress":      nil,
			"ForwardingAddress":          nil,
			"DeliverToMailboxAndForward": false,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("clear forwarding: %w", err))
		} else {
			changes = append(changes, "forwarding cleared")
		}
	}
	if opts.EnableProtocols {
		if err := p.exo.EnableClientProtocols(ctx, identity); err != nil {
			errs = append(errs, fmt.Errorf("enable client protocols: %w", err))
		} else {
			changes = append(changes, "client protocols enabled")
		}
	}
	return changes, errors.Join(errs...)
}

// AddGroupMember adds user to group, given as an object id, display name or
// mail address. Names are resolved once per run.
func (p *Provider) AddGroupMember(ctx context.Context, user *directory.User, group string) error {
	groupID, err := p.resolveGroup(ctx, group)
	if err != nil {
		return err
	}
	if err := p.graph.addMember(ctx, groupID, user.ID); err != nil {
		if isAlreadyMember(err) {
			return fmt.Errorf("%s: %w", group, directory.ErrAlreadyMember)
		}
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", group, directory.ErrGroupNotFound)
		}
		return enrichGraphAPIError(err, p.log, "add group member "+group)
	}
	return nil
}

func (p *Provider) resolveGroup(ctx context.Context, ref string) (string, error) {
	if validation.IsGUID(ref) {
		return ref, nil
	}
	key := strings.ToLower(ref)
	if id, ok := p.groupIDs[key]; ok {
		return id, nil
	}
	found, err := p.graph.findGroups(ctx, ref)
	if err != nil {
		return "", enrichGraphAPIError(err, p.log, "find group "+ref)
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s: %w", ref, directory.ErrGroupNotFound)
	case 1:
		p.groupIDs[key] = found[0].ID
		p.log.Debug("Resolved group", "group", ref, "id", found[0].ID)
		return found[0].ID, nil
	default:
		return "", fmt.Errorf("group %q is ambiguous: %d groups match", ref, len(found))
	}
}

// AssignLicenses adds the SKUs to the user. Licences already assigned are
// accepted by Graph without error.
func (p *Provider) AssignLicenses(ctx context.Context, user *directory.User, skus []string) error {
	if len(skus) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(skus))
	for _, s := range skus {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("invalid licence SKU %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	if err := p.graph.assignLicenses(ctx, user.ID, ids); err != nil {
		return enrichGraphAPIError(err, p.log, "assign licenses")
	}
	return nil
}

func (p *Provider) RevokeSessions(ctx context.Context, user *directory.User) error {
	if err := p.graph.revokeSessions(ctx, user.ID); err != nil {
		return enrichGraphAPIError(err, p.log, "revoke sign-in sessions")
	}
	return nil
}

// IsRetryable classifies errors returned by this provider for retry.Do.
func (p *Provider) IsRetryable(err error) bool { return IsRetryable(err) }
