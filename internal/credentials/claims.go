package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v5"
)

const (
	GraphScope    = "https://graph.microsoft.com/.default"
	ExchangeScope = "https://outlook.office365.com/.default"
)

// TokenClaims represents relevant claims from Microsoft Entra ID JWT tokens
type TokenClaims struct {
	AppDisplayName string   `json:"app_displayname"`
	AppID          string   `json:"appid"`
	TenantID       string   `json:"tid"`
	Roles          []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenInfo summarises an access token for the checkauth action.
type TokenInfo struct {
	Scope     string
	ExpiresOn time.Time
	Token     string
	AppName   string
	AppID     string
	TenantID  string
	Roles     []string
}

// RolesString joins the roles, or "(none)".
func (i TokenInfo) RolesString() string {
	if len(i.Roles) == 0 {
		return "(none)"
	}
	return strings.Join(i.Roles, ", ")
}

// ParseClaims decodes an access token without verifying its signature.
// The token came straight from the identity platform over TLS.
func ParseClaims(tokenString string) (*TokenClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &TokenClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return nil, fmt.Errorf("failed to extract claims from token")
	}
	return claims, nil
}

// Inspect acquires a token for scope and returns its claims.
func Inspect(ctx context.Context, cred azcore.TokenCredential, scope string) (*TokenInfo, error) {
	tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
	if err != nil {
		return nil, fmt.Errorf("acquiring token for %s: %w", scope, err)
	}
	info := &TokenInfo{Scope: scope, ExpiresOn: tok.ExpiresOn, Token: tok.Token}
	claims, err := ParseClaims(tok.Token)
	if err != nil {
		return info, err
	}
	info.AppName = claims.AppDisplayName
	if info.AppName == "" {
		info.AppName = "(not available)"
	}
	info.AppID = claims.AppID
	info.TenantID = claims.TenantID
	info.Roles = claims.Roles
	return info, nil
}

// MissingRoles returns the entries of required that are absent from have.
func MissingRoles(have, required []string) []string {
	set := make(map[string]bool, len(have))
	for _, r := range have {
		set[strings.ToLower(r)] = true
	}
	var missing []string
	for _, r := range required {
		if !set[strings.ToLower(r)] {
			missing = append(missing, r)
		}
	}
	return missing
}
