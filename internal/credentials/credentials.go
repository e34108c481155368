// Package credentials builds the Entra ID token credential used by the
// Microsoft provider and inspects the tokens it issues.
package credentials

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"software.sslmate.com/src/go-pkcs12"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/security"
	"reactivatetool/internal/settings"
)

// ErrCertStoreUnsupported is returned for thumbprint authentication outside Windows.
var ErrCertStoreUnsupported = errors.New("certificate store thumbprint authentication is only supported on Windows")

// New returns a credential for the first configured method:
// client secret, PFX file, then Windows certificate store thumbprint.
func New(auth settings.AuthSettings, log *slog.Logger) (azcore.TokenCredential, error) {
	log = logger.OrDiscard(log)
	log.Debug("Setting up Entra ID credential",
		"tenantID", security.MaskGUID(auth.TenantID), "clientID", security.MaskGUID(auth.ClientID))

	switch {
	case auth.ClientSecret != "":
		log.Debug("Authentication method: Client Secret", "secret", security.MaskSecret(auth.ClientSecret))
		cred, err := azidentity.NewClientSecretCredential(auth.TenantID, auth.ClientID, auth.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("creating client secret credential: %w", err)
		}
		return cred, nil

	case auth.CertificatePath != "":
		log.Debug("Authentication method: PFX Certificate File", "path", auth.CertificatePath)
		pfxData, err := os.ReadFile(auth.CertificatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read PFX file: %w", err)
		}
		cred, err := FromPFX(auth.TenantID, auth.ClientID, pfxData, auth.CertificatePassword)
		if err != nil {
			return nil, err
		}
		return cred, nil

	case auth.Thumbprint != "":
		log.Debug("Authentication method: Windows Certificate Store", "thumbprint", auth.Thumbprint)
		pfxData, tempPass, err := exportCertFromStore(auth.Thumbprint)
		if err != nil {
			return nil, fmt.Errorf("failed to export cert from store: %w", err)
		}
		log.Debug("Certificate exported from CurrentUser\\My", "bytes", len(pfxData))
		cred, err := FromPFX(auth.TenantID, auth.ClientID, pfxData, tempPass)
		if err != nil {
			return nil, err
		}
		return cred, nil
	}

	return nil, fmt.Errorf("no authentication method configured (set auth.clientSecret, auth.certificatePath or auth.thumbprint)")
}

// FromPFX decodes pfxData and returns a certificate credential that sends
// the full chain.
func FromPFX(tenantID, clientID string, pfxData []byte, password string) (*azidentity.ClientCertificateCredential, error) {
	key, certs, err := DecodePFX(pfxData, password)
	if err != nil {
		return nil, err
	}
	return azidentity.NewClientCertificateCredential(tenantID, clientID, certs, key,
		&azidentity.ClientCertificateCredentialOptions{SendCertificateChain: true})
}

// DecodePFX returns the private key and the certificate chain, leaf first.
// SHA-256 (Modern2023) and legacy SHA-1/3DES containers are both accepted.
func DecodePFX(pfxData []byte, password string) (crypto.PrivateKey, []*x509.Certificate, error) {
	if len(pfxData) == 0 {
		return nil, nil, fmt.Errorf("failed to decode PFX: empty data")
	}
	key, cert, caCerts, err := pkcs12.DecodeChain(pfxData, password)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode PFX: %w", err)
	}
	if key == nil || cert == nil {
		return nil, nil, fmt.Errorf("failed to decode PFX: missing key or certificate")
	}
	return key, append([]*x509.Certificate{cert}, caCerts...), nil
}
