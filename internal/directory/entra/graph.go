package entra

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/google/uuid"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/groups"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/organization"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"reactivatetool/internal/credentials"
	"reactivatetool/internal/directory"
)

const directoryObjectsURL = "https://graph.microsoft.com/v1.0/directoryObjects/"

var userSelect = []string{"id", "userPrincipalName", "mail", "displayName", "accountEnabled", "employeeType", "usageLocation"}

// userPatch lists the user properties a reactivation may change.
// Nil fields are left untouched.
type userPatch struct {
	AccountEnabled *bool
	EmployeeType   *string
	UsageLocation  *string
	Password       *string
	ForceChange    bool
}

type group struct {
	ID          string
	DisplayName string
	Mail        string
}

// graphAPI is the slice of Microsoft Graph the provider needs.
type graphAPI interface {
	organizationName(ctx context.Context) (string, error)
	getUser(ctx context.Context, idOrUPN string) (*directory.User, error)
	patchUser(ctx context.Context, id string, p userPatch) error
	findGroups(ctx context.Context, name string) ([]group, error)
	addMember(ctx context.Context, groupID, userID string) error
	assignLicenses(ctx context.Context, userID string, skus []uuid.UUID) error
	revokeSessions(ctx context.Context, userID string) error
	disableAutoReply(ctx context.Context, userID string) error
}

type sdkGraph struct {
	client *msgraphsdk.GraphServiceClient
}

func newSDKGraph(cred azcore.TokenCredential) (*sdkGraph, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{credentials.GraphScope})
	if err != nil {
		return nil, fmt.Errorf("graph client initialization failed: %w", err)
	}
	return &sdkGraph{client: client}, nil
}

func (g *sdkGraph) organizationName(ctx context.Context) (string, error) {
	resp, err := g.client.Organization().Get(ctx, &organization.OrganizationRequestBuilderGetRequestConfiguration{
		QueryParameters: &organization.OrganizationRequestBuilderGetQueryParameters{
			Select: []string{"id", "displayName"},
		},
	})
	if err != nil {
		return "", err
	}
	for _, org := range resp.GetValue() {
		return deref(org.GetDisplayName()), nil
	}
	return "", nil
}

func (g *sdkGraph) getUser(ctx context.Context, idOrUPN string) (*directory.User, error) {
	u, err := g.client.Users().ByUserId(idOrUPN).Get(ctx, &users.UserItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.UserItemRequestBuilderGetQueryParameters{Select: userSelect},
	})
	if err != nil {
		return nil, err
	}
	email := deref(u.GetMail())
	if email == "" {
		email = deref(u.GetUserPrincipalName())
	}
	return &directory.User{
		ID:           deref(u.GetId()),
		Email:        email,
		DisplayName:  deref(u.GetDisplayName()),
		Enabled:      u.GetAccountEnabled() != nil && *u.GetAccountEnabled(),
		EmployeeType: deref(u.GetEmployeeType()),
	}, nil
}

func (g *sdkGraph) patchUser(ctx context.Context, id string, p userPatch) error {
	body := models.NewUser()
	if p.AccountEnabled != nil {
		body.SetAccountEnabled(p.AccountEnabled)
	}
	if p.EmployeeType != nil {
		body.SetEmployeeType(p.EmployeeType)
	}
	if p.UsageLocation != nil {
		body.SetUsageLocation(p.UsageLocation)
	}
	if p.Password != nil {
		profile := models.NewPasswordProfile()
		profile.SetPassword(p.Password)
		force := p.ForceChange
		profile.SetForceChangePasswordNextSignIn(&force)
		body.SetPasswordProfile(profile)
	}
	_, err := g.client.Users().ByUserId(id).Patch(ctx, body, nil)
	return err
}

func (g *sdkGraph) findGroups(ctx context.Context, name string) ([]group, error) {
	quoted := strings.ReplaceAll(name, "'", "''")
	filter := fmt.Sprintf("displayName eq '%s' or mail eq '%s'", quoted, quoted)
	resp, err := g.client.Groups().Get(ctx, &groups.GroupsRequestBuilderGetRequestConfiguration{
		QueryParameters: &groups.GroupsRequestBuilderGetQueryParameters{
			Filter: &filter,
			Select: []string{"id", "displayName", "mail"},
		},
	})
	if err != nil {
		return nil, err
	}
	var out []group
	for _, grp := range resp.GetValue() {
		out = append(out, group{
			ID:          deref(grp.GetId()),
			DisplayName: deref(grp.GetDisplayName()),
			Mail:        deref(grp.GetMail()),
		})
	}
	return out, nil
}

func (g *sdkGraph) addMember(ctx context.Context, groupID, userID string) error {
	ref := models.NewReferenceCreate()
	odataID := directoryObjectsURL + userID
	ref.SetOdataId(&odataID)
	return g.client.Groups().ByGroupId(groupID).Members().Ref().Post(ctx, ref, nil)
}

func (g *sdkGraph) assignLicenses(ctx context.Context, userID string, skus []uuid.UUID) error {
	add := make([]models.AssignedLicenseable, 0, len(skus))
	for i := range skus {
		lic := models.NewAssignedLicense()
		lic.SetSkuId(&skus[i])
		add = append(add, lic)
	}
	body := users.NewItemAssignLicensePostRequestBody()
	body.SetAddLicenses(add)
	body.SetRemoveLicenses([]uuid.UUID{})
	_, err := g.client.Users().ByUserId(userID).AssignLicense().Post(ctx, body, nil)
	return err
}

func (g *sdkGraph) revokeSessions(ctx context.Context, userID string) error {
	_, err := g.client.Users().ByUserId(userID).RevokeSignInSessions().PostAsRevokeSignInSessionsPostResponse(ctx, nil)
	return err
}

func (g *sdkGraph) disableAutoReply(ctx context.Context, userID string) error {
	status := models.DISABLED_AUTOMATICREPLIESSTATUS
	replies := models.NewAutomaticRepliesSetting()
	replies.SetStatus(&status)
	body := models.NewMailboxSettings()
	body.SetAutomaticRepliesSetting(replies)
	_, err := g.client.Users().ByUserId(userID).MailboxSettings().Patch(ctx, body, nil)
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
