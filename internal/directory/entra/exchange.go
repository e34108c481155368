package entra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"

	"reactivatetool/internal/common/version"
	"reactivatetool/internal/credentials"
	"reactivatetool/internal/directory"
)

const (
	defaultExchangeEndpoint = "https://outlook.office365.com"
	// Well-known arbitration mailbox used to route admin API calls for a tenant.
	systemMailbox = "SystemMailbox{bb558c35-97f1-4cb9-8ff7-d53741dc928c}"
)

// ExchangeOptions configures an ExchangeClient.
type ExchangeOptions struct {
	// Endpoint overrides https://outlook.office365.com.
	Endpoint string
	// ClientOptions are passed to the azcore pipeline.
	ClientOptions policy.ClientOptions
}

// ExchangeClient runs Exchange Online cmdlets through the REST admin API
// (adminapi/beta/{tenant}/InvokeCommand) with an app-only token.
type ExchangeClient struct {
	pipeline     runtime.Pipeline
	endpoint     string
	anchor       string
	organization string
}

// NewExchangeClient builds a client for tenantID whose primary domain is organization.
func NewExchangeClient(cred azcore.TokenCredential, tenantID, organization string, opts *ExchangeOptions) (*ExchangeClient, error) {
	if tenantID == "" || organization == "" {
		return nil, fmt.Errorf("exchange admin client needs both tenant id and organization")
	}
	if opts == nil {
		opts = &ExchangeOptions{}
	}
	base := strings.TrimRight(opts.Endpoint, "/")
	if base == "" {
		base = defaultExchangeEndpoint
	}

	clientOpts := opts.ClientOptions
	// retry.Do wraps every call; the pipeline makes one attempt.
	if clientOpts.Retry.MaxRetries == 0 {
		clientOpts.Retry.MaxRetries = -1
	}
	if clientOpts.Telemetry.ApplicationID == "" {
		clientOpts.Telemetry.ApplicationID = version.UserAgent()
	}

	pl := runtime.NewPipeline("reactivatetool", version.Get(), runtime.PipelineOptions{
		PerRetry: []policy.Policy{
			runtime.NewBearerTokenPolicy(cred, []string{credentials.ExchangeScope}, nil),
		},
	}, &clientOpts)

	return &ExchangeClient{
		pipeline:     pl,
		endpoint:     base + "/adminapi/beta/" + url.PathEscape(tenantID) + "/InvokeCommand",
		anchor:       "UPN:" + systemMailbox + "@" + organization,
		organization: organization,
	}, nil
}

type cmdletRequest struct {
	CmdletInput cmdletInput `json:"CmdletInput"`
}

type cmdletInput struct {
	CmdletName string         `json:"CmdletName"`
	Parameters map[string]any `json:"Parameters,omitempty"`
}

type cmdletResponse struct {
	Value []json.RawMessage `json:"value"`
}

// InvokeCommand runs cmdlet with params and returns the raw objects of the
// "value" array. A nil parameter value is sent as JSON null, which clears
// the property.
func (c *ExchangeClient) InvokeCommand(ctx context.Context, cmdlet string, params map[string]any) ([]json.RawMessage, error) {
	req, err := runtime.NewRequest(ctx, http.MethodPost, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", cmdlet, err)
	}
	req.Raw().Header.Set("X-AnchorMailbox", c.anchor)
	req.Raw().Header.Set("X-ResponseFormat", "json")
	if err := runtime.MarshalAsJSON(req, cmdletRequest{CmdletInput: cmdletInput{CmdletName: cmdlet, Parameters: params}}); err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", cmdlet, err)
	}

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmdlet, err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return nil, fmt.Errorf("%s: %w", cmdlet, runtime.NewResponseError(resp))
	}

	var out cmdletResponse
	if err := runtime.UnmarshalAsJSON(resp, &out); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", cmdlet, err)
	}
	return out.Value, nil
}

// Mailbox is the subset of Get-Mailbox output the reactivation cares about.
type Mailbox struct {
	Identity                      string `json:"Identity"`
	PrimarySmtpAddress            string `json:"PrimarySmtpAddress"`
	RecipientTypeDetails          string `json:"RecipientTypeDetails"`
	HiddenFromAddressListsEnabled bool   `json:"HiddenFromAddressListsEnabled"`
	ForwardingSmtpAddress         string `json:"ForwardingSmtpAddress"`
	ForwardingAddress             string `json:"ForwardingAddress"`
	DeliverToMailboxAndForward    bool   `json:"DeliverToMailboxAndForward"`
}

// IsShared reports whether the mailbox was converted to a shared mailbox.
func (m Mailbox) IsShared() bool {
	return strings.EqualFold(m.RecipientTypeDetails, "SharedMailbox")
}

// HasForwarding reports whether any forwarding is configured.
func (m Mailbox) HasForwarding() bool {
	return m.ForwardingSmtpAddress != "" || m.ForwardingAddress != "" || m.DeliverToMailboxAndForward
}

// AcceptedDomains runs Get-AcceptedDomain and returns the domain names.
// Used as the connectivity probe.
func (c *ExchangeClient) AcceptedDomains(ctx context.Context) ([]string, error) {
	values, err := c.InvokeCommand(ctx, "Get-AcceptedDomain", nil)
	if err != nil {
		return nil, err
	}
	var domains []string
	for _, raw := range values {
		var d struct {
			DomainName string `json:"DomainName"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("Get-AcceptedDomain: decoding domain: %w", err)
		}
		domains = append(domains, d.DomainName)
	}
	return domains, nil
}

// GetMailbox returns the mailbox for identity, or directory.ErrNoMailbox.
func (c *ExchangeClient) GetMailbox(ctx context.Context, identity string) (*Mailbox, error) {
	values, err := c.InvokeCommand(ctx, "Get-Mailbox", map[string]any{"Identity": identity})
	if err != nil {
		if isNotFoundCmdletError(err) {
			return nil, fmt.Errorf("%w: %s", directory.ErrNoMailbox, identity)
		}
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", directory.ErrNoMailbox, identity)
	}
	var mbx Mailbox
	if err := json.Unmarshal(values[0], &mbx); err != nil {
		return nil, fmt.Errorf("Get-Mailbox: decoding mailbox: %w", err)
	}
	return &mbx, nil
}

// SetMailbox runs Set-Mailbox -Identity identity with params.
func (c *ExchangeClient) SetMailbox(ctx context.Context, identity string, params map[string]any) error {
	p := map[string]any{"Identity": identity}
	for k, v := range params {
		p[k] = v
	}
	_, err := c.InvokeCommand(ctx, "Set-Mailbox", p)
	return err
}

// EnableClientProtocols turns on every client access protocol for identity.
func (c *ExchangeClient) EnableClientProtocols(ctx context.Context, identity string) error {
	_, err := c.InvokeCommand(ctx, "Set-CASMailbox", map[string]any{
		"Identity":          identity,
		"OWAEnabled":        true,
		"ActiveSyncEnabled": true,
		"PopEnabled":        true,
		"ImapEnabled":       true,
		"MAPIEnabled":       true,
		"EwsEnabled":        true,
	})
	return err
}

func isNotFoundCmdletError(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "couldn't be found") || strings.Contains(msg, "managementobjectnotfoundexception")
}
