package entra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"reactivatetool/internal/directory"
)

const testTenant = "11111111-2222-3333-4444-555555555555"

type fakeCredential struct{ token string }

func (f fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: f.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

type capturedRequest struct {
	Path   string
	Auth   string
	Anchor string
	Body   cmdletRequest
	Raw    map[string]any
}

func newExchangeServer(t *testing.T, handler func(req capturedRequest) (int, string)) (*ExchangeClient, *[]capturedRequest) {
	t.Helper()
	var seen []capturedRequest
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var c capturedRequest
		c.Path = r.URL.Path
		c.Auth = r.Header.Get("Authorization")
		c.Anchor = r.Header.Get("X-AnchorMailbox")
		_ = json.Unmarshal(data, &c.Body)
		var raw struct {
			CmdletInput map[string]any `json:"CmdletInput"`
		}
		_ = json.Unmarshal(data, &raw)
		c.Raw = raw.CmdletInput
		seen = append(seen, c)

		status, body := handler(c)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	client, err := NewExchangeClient(fakeCredential{token: "tok"}, testTenant, "contoso.onmicrosoft.com", &ExchangeOptions{
		Endpoint:      srv.URL,
		ClientOptions: policy.ClientOptions{Transport: srv.Client()},
	})
	if err != nil {
		t.Fatalf("NewExchangeClient: %v", err)
	}
	return client, &seen
}

func TestNewExchangeClientRequiresIDs(t *testing.T) {
	if _, err := NewExchangeClient(fakeCredential{}, "", "contoso.com", nil); err == nil {
		t.Error("expected error for empty tenant")
	}
	if _, err := NewExchangeClient(fakeCredential{}, testTenant, "", nil); err == nil {
		t.Error("expected error for empty organization")
	}
}

func TestInvokeCommandRequestShape(t *testing.T) {
	client, seen := newExchangeServer(t, func(capturedRequest) (int, string) {
		return http.StatusOK, `{"value":[{"DomainName":"contoso.com"},{"DomainName":"contoso.onmicrosoft.com"}]}`
	})

	domains, err := client.AcceptedDomains(context.Background())
	if err != nil {
		t.Fatalf("AcceptedDomains: %v", err)
	}
	if len(domains) != 2 || domains[0] != "contoso.com" {
		t.Errorf("domains = %v", domains)
	}

	req := (*seen)[0]
	if want := "/adminapi/beta/" + testTenant + "/InvokeCommand"; req.Path != want {
		t.Errorf("path = %q, want %q", req.Path, want)
	}
	if req.Auth != "Bearer tok" {
		t.Errorf("Authorization = %q", req.Auth)
	}
	if !strings.HasPrefix(req.Anchor, "UPN:SystemMailbox{") || !strings.HasSuffix(req.Anchor, "@contoso.onmicrosoft.com") {
		t.Errorf("X-AnchorMailbox = %q", req.Anchor)
	}
	if req.Body.CmdletInput.CmdletName != "Get-AcceptedDomain" {
		t.Errorf("cmdlet = %q", req.Body.CmdletInput.CmdletName)
	}
}

func TestInvokeCommandError(t *testing.T) {
	client, _ := newExchangeServer(t, func(capturedRequest) (int, string) {
		return http.StatusBadRequest, `{"error":{"code":"BadRequest","message":"A parameter cannot be found"}}`
	})

	_, err := client.InvokeCommand(context.Background(), "Set-Mailbox", map[string]any{"Identity": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("error %v is not an azcore.ResponseError", err)
	}
	if respErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", respErr.StatusCode)
	}
	if !strings.HasPrefix(err.Error(), "Set-Mailbox: ") {
		t.Errorf("error should name the cmdlet: %v", err)
	}
}

func TestGetMailbox(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantShared bool
		wantNoMbx  bool
	}{
		{
			name:       "shared mailbox",
			status:     http.StatusOK,
			body:       `{"value":[{"Identity":"jane","RecipientTypeDetails":"SharedMailbox","HiddenFromAddressListsEnabled":true}]}`,
			wantShared: true,
		},
		{
			name:      "empty result",
			status:    http.StatusOK,
			body:      `{"value":[]}`,
			wantNoMbx: true,
		},
		{
			name:      "not found",
			status:    http.StatusNotFound,
			body:      `{"error":{"code":"NotFound","message":"The operation couldn't be performed because object 'jane' couldn't be found"}}`,
			wantNoMbx: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, seen := newExchangeServer(t, func(capturedRequest) (int, string) { return tt.status, tt.body })
			mbx, err := client.GetMailbox(context.Background(), "jane@contoso.com")
			if tt.wantNoMbx {
				if !errors.Is(err, directory.ErrNoMailbox) {
					t.Fatalf("err = %v, want ErrNoMailbox", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetMailbox: %v", err)
			}
			if mbx.IsShared() != tt.wantShared {
				t.Errorf("IsShared = %v", mbx.IsShared())
			}
			if got := (*seen)[0].Body.CmdletInput.Parameters["Identity"]; got != "jane@contoso.com" {
				t.Errorf("Identity = %v", got)
			}
		})
	}
}

func TestSetMailboxSendsNullForClearedFields(t *testing.T) {
	client, seen := newExchangeServer(t, func(capturedRequest) (int, string) {
		return http.StatusOK, `{"value":[]}`
	})

	err := client.SetMailbox(context.Background(), "jane@contoso.com", map[string]any{
		"ForwardingSmtpAddress":      nil,
		"DeliverToMailboxAndForward": false,
	})
	if err != nil {
		t.Fatalf("SetMailbox: %v", err)
	}
	params, ok := (*seen)[0].Raw["Parameters"].(map[string]any)
	if !ok {
		t.Fatalf("Parameters missing: %v", (*seen)[0].Raw)
	}
	if v, present := params["ForwardingSmtpAddress"]; !present || v != nil {
		t.Errorf("ForwardingSmtpAddress = %v (present %v), want explicit null", v, present)
	}
	if params["DeliverToMailboxAndForward"] != false {
		t.Errorf("DeliverToMailboxAndForward = %v", params["DeliverToMailboxAndForward"])
	}
	if params["Identity"] != "jane@contoso.com" {
		t.Errorf("Identity = %v", params["Identity"])
	}
}

func TestEnableClientProtocols(t *testing.T) {
	client, seen := newExchangeServer(t, func(capturedRequest) (int, string) {
		return http.StatusOK, `{"value":[]}`
	})
	if err := client.EnableClientProtocols(context.Background(), "jane@contoso.com"); err != nil {
		t.Fatalf("EnableClientProtocols: %v", err)
	}
	in := (*seen)[0].Body.CmdletInput
	if in.CmdletName != "Set-CASMailbox" {
		t.Errorf("cmdlet = %q", in.CmdletName)
	}
	for _, k := range []string{"OWAEnabled", "ActiveSyncEnabled", "PopEnabled", "ImapEnabled", "MAPIEnabled", "EwsEnabled"} {
		if in.Parameters[k] != true {
			t.Errorf("%s = %v, want true", k, in.Parameters[k])
		}
	}
}

func TestMailboxHasForwarding(t *testing.T) {
	if (Mailbox{}).HasForwarding() {
		t.Error("empty mailbox should have no forwarding")
	}
	if !(Mailbox{ForwardingSmtpAddress: "smtp:x@example.com"}).HasForwarding() {
		t.Error("smtp forwarding not detected")
	}
}
