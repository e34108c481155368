package settings

import (
	"fmt"

	"reactivatetool/internal/common/validation"
)

func (s *Settings) validateMicrosoft() []string {
	var problems []string
	if err := validation.ValidateGUID(s.Auth.TenantID, "auth.tenantId"); err != nil {
		problems = append(problems, err.Error())
	}
	if err := validation.ValidateGUID(s.Auth.ClientID, "auth.clientId"); err != nil {
		problems = append(problems, err.Error())
	}

	switch n := s.Auth.methodCount(); {
	case n == 0:
		problems = append(problems, "one of auth.clientSecret, auth.certificatePath or auth.thumbprint is required")
	case n > 1:
		problems = append(problems, "auth.clientSecret, auth.certificatePath and auth.thumbprint are mutually exclusive")
	}
	if s.Auth.CertificatePath != "" {
		if err := validation.ValidateFilePath(s.Auth.CertificatePath, "auth.certificatePath"); err != nil {
			problems = append(problems, err.Error())
		}
	}

	for _, sku := range s.Licenses.Default {
		if err := validation.ValidateGUID(sku, "licenses.default"); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for et, skus := range s.Licenses.ByEmployeeType {
		for _, sku := range skus {
			if err := validation.ValidateGUID(sku, fmt.Sprintf("licenses.byEmployeeType[%s]", et)); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}
	if (s.Mailbox.Unhide || s.Mailbox.EnableProtocols || s.Mailbox.ClearForwarding || s.Mailbox.ConvertToRegular) && s.Organization == "" {
		problems = append(problems, "organization (the tenant's primary domain, e.g. contoso.onmicrosoft.com) is required for mailbox cleanup")
	}
	return problems
}

func (s *Settings) validateGoogle() []string {
	var problems []string
	if s.Google.CredentialsPath == "" {
		problems = append(problems, "google.credentialsPath is required")
	} else if err := validation.ValidateFilePath(s.Google.CredentialsPath, "google.credentialsPath"); err != nil {
		problems = append(problems, err.Error())
	}
	if err := validation.ValidateEmail(s.Google.AdminSubject); err != nil {
		problems = append(problems, "google.adminSubject: "+err.Error())
	}
	if len(s.Licenses.Default) > 0 || len(s.Licenses.ByEmployeeType) > 0 {
		problems = append(problems, "licenses are not supported by the google provider")
	}
	return problems
}

func validateSFTP(c SFTPSettings) error {
	if err := validation.ValidateHostname(c.Host); err != nil {
		return fmt.Errorf("report.sftp.host: %w", err)
	}
	if err := validation.ValidatePort(c.Port); err != nil {
		return fmt.Errorf("report.sftp.port: %w", err)
	}
	if c.User == "" {
		return fmt.Errorf("report.sftp.user is required")
	}
	if c.Password == "" {
		return fmt.Errorf("report.sftp.password is required")
	}
	return nil
}
