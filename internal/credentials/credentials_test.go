package credentials

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/golang-jwt/jwt/v5"
	"software.sslmate.com/src/go-pkcs12"

	"reactivatetool/internal/settings"
)

const (
	testTenant = "11111111-2222-3333-4444-555555555555"
	testClient = "66666666-7777-8888-9999-000000000000"
)

func generateTestCertificate(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate private key: %v", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("Failed to generate serial number: %v", err)
	}
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Contoso"}, CommonName: "reactivatetool"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert, privateKey
}

func TestDecodePFX(t *testing.T) {
	cert, key := generateTestCertificate(t)
	modern, err := pkcs12.Modern2023.Encode(key, cert, nil, "test-password")
	if err != nil {
		t.Fatalf("Modern2023.Encode: %v", err)
	}
	legacy, err := pkcs12.Legacy.Encode(key, cert, nil, "test-password")
	if err != nil {
		t.Fatalf("Legacy.Encode: %v", err)
	}
	noPass, err := pkcs12.Modern2023.Encode(key, cert, nil, "")
	if err != nil {
		t.Fatalf("Modern2023.Encode: %v", err)
	}

	tests := []struct {
		name     string
		data     []byte
		password string
		wantErr  bool
	}{
		{"modern SHA-256 container", modern, "test-password", false},
		{"legacy SHA-1 container", legacy, "test-password", false},
		{"empty password", noPass, "", false},
		{"wrong password", modern, "wrong-password", true},
		{"malformed data", []byte("this is not a valid PFX file"), "x", true},
		{"empty data", nil, "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, chain, err := DecodePFX(tt.data, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodePFX() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if k == nil {
				t.Error("expected private key")
			}
			if len(chain) != 1 || chain[0].Subject.CommonName != "reactivatetool" {
				t.Errorf("unexpected chain: %v", chain)
			}
		})
	}
}

func TestNew(t *testing.T) {
	cert, key := generateTestCertificate(t)
	pfx, err := pkcs12.Modern2023.Encode(key, cert, nil, "pw")
	if err != nil {
		t.Fatal(err)
	}
	pfxPath := filepath.Join(t.TempDir(), "app.pfx")
	if err := os.WriteFile(pfxPath, pfx, 0600); err != nil {
		t.Fatal(err)
	}

	t.Run("client secret", func(t *testing.T) {
		cred, err := New(settings.AuthSettings{TenantID: testTenant, ClientID: testClient, ClientSecret: "secret-value"}, nil)
		if err != nil || cred == nil {
			t.Fatalf("New() = %v, %v", cred, err)
		}
	})

	t.Run("pfx file", func(t *testing.T) {
		cred, err := New(settings.AuthSettings{TenantID: testTenant, ClientID: testClient, CertificatePath: pfxPath, CertificatePassword: "pw"}, nil)
		if err != nil || cred == nil {
			t.Fatalf("New() = %v, %v", cred, err)
		}
	})

	t.Run("pfx wrong password", func(t *testing.T) {
		_, err := New(settings.AuthSettings{TenantID: testTenant, ClientID: testClient, CertificatePath: pfxPath, CertificatePassword: "nope"}, nil)
		if err == nil {
			t.Fatal("expected decode error")
		}
	})

	t.Run("pfx missing file", func(t *testing.T) {
		_, err := New(settings.AuthSettings{TenantID: testTenant, ClientID: testClient, CertificatePath: pfxPath + ".missing"}, nil)
		if err == nil || !strings.Contains(err.Error(), "read PFX") {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("no method", func(t *testing.T) {
		if _, err := New(settings.AuthSettings{TenantID: testTenant, ClientID: testClient}, nil); err == nil {
			t.Fatal("expected error")
		}
	})

	if runtime.GOOS != "windows" {
		t.Run("thumbprint outside windows", func(t *testing.T) {
			_, err := New(settings.AuthSettings{TenantID: testTenant, ClientID: testClient, Thumbprint: strings.Repeat("a", 40)}, nil)
			if !errors.Is(err, ErrCertStoreUnsupported) {
				t.Fatalf("error = %v, want ErrCertStoreUnsupported", err)
			}
		})
	}
}

func signedToken(t *testing.T, claims TokenClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestParseClaims(t *testing.T) {
	tok := signedToken(t, TokenClaims{
		AppDisplayName: "Reactivation App",
		AppID:          testClient,
		TenantID:       testTenant,
		Roles:          []string{"User.ReadWrite.All", "Exchange.ManageAsApp"},
	})

	claims, err := ParseClaims(tok)
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if claims.AppDisplayName != "Reactivation App" || claims.TenantID != testTenant {
		t.Errorf("claims = %+v", claims)
	}
	if len(claims.Roles) != 2 {
		t.Errorf("roles = %v", claims.Roles)
	}

	if _, err := ParseClaims("not.a.jwt"); err == nil {
		t.Error("ParseClaims() should reject garbage")
	}
}

type staticCredential struct {
	token string
	err   error
}

func (s staticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if s.err != nil {
		return azcore.AccessToken{}, s.err
	}
	return azcore.AccessToken{Token: s.token, ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestInspect(t *testing.T) {
	tok := signedToken(t, TokenClaims{Roles: []string{"User.ReadWrite.All"}})
	info, err := Inspect(context.Background(), staticCredential{token: tok}, GraphScope)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.AppName != "(not available)" {
		t.Errorf("AppName = %q", info.AppName)
	}
	if info.RolesString() != "User.ReadWrite.All" {
		t.Errorf("RolesString() = %q", info.RolesString())
	}

	if _, err := Inspect(context.Background(), staticCredential{err: errors.New("AADSTS700016")}, GraphScope); err == nil {
		t.Error("Inspect() should surface token errors")
	}
	if (TokenInfo{}).RolesString() != "(none)" {
		t.Error("empty roles should print (none)")
	}
}

func TestMissingRoles(t *testing.T) {
	got := MissingRoles([]string{"user.readwrite.all"}, []string{"User.ReadWrite.All", "GroupMember.ReadWrite.All"})
	if !reflect.DeepEqual(got, []string{"GroupMember.ReadWrite.All"}) {
		t.Errorf("MissingRoles() = %v", got)
	}
}
