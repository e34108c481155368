// Package secrets fills empty secret settings from a Keeper Secrets Manager record.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	ksm "github.com/keeper-security/secrets-manager-go/core"

	"reactivatetool/internal/settings"
)

// ConfigEnv holds the base64 KSM device configuration.
const ConfigEnv = "KSM_CONFIG_BASE64"

// Custom field labels read from the record.
const (
	LabelDefaultPassword = "Default Password"
	LabelTelegramToken   = "Telegram Token"
	LabelSFTPPassword    = "SFTP Password"
)

var (
	ErrNoConfig       = errors.New("keeper config not set")
	ErrRecordNotFound = errors.New("keeper record not found")
)

// Secret is the part of a Keeper record this tool reads.
type Secret struct {
	UID      string
	Title    string
	Password string
	// Fields maps custom field labels to their first value.
	Fields map[string]string
}

// Fetcher retrieves a record by UID.
type Fetcher interface {
	Fetch(uid string) (*Secret, error)
}

type keeperFetcher struct {
	sm *ksm.SecretsManager
}

// NewKeeper builds a Fetcher from a base64 device config. An empty config
// falls back to the KSM_CONFIG_BASE64 environment variable.
func NewKeeper(configBase64 string) (Fetcher, error) {
	if env := os.Getenv(ConfigEnv); env != "" {
		configBase64 = env
	}
	if configBase64 == "" {
		return nil, fmt.Errorf("%w: set %s or keeper.config", ErrNoConfig, ConfigEnv)
	}
	sm := ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: ksm.NewMemoryKeyValueStorage(configBase64),
	})
	return &keeperFetcher{sm: sm}, nil
}

func (k *keeperFetcher) Fetch(uid string) (*Secret, error) {
	records, err := k.sm.GetSecrets([]string{uid})
	if err != nil {
		return nil, fmt.Errorf("keeper: %w", err)
	}
	for _, r := range records {
		if r.Uid != uid {
			continue
		}
		s := &Secret{UID: r.Uid, Title: r.Title(), Password: r.Password(), Fields: map[string]string{}}
		for _, label := range []string{LabelDefaultPassword, LabelTelegramToken, LabelSFTPPassword} {
			if v := firstValue(r.GetCustomFieldsByLabel(label)); v != "" {
				s.Fields[label] = v
			}
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, uid)
}

func firstValue(fields []map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	values, ok := fields[0]["value"].([]interface{})
	if !ok || len(values) == 0 || values[0] == nil {
		return ""
	}
	s, _ := values[0].(string)
	return strings.TrimSpace(s)
}

// Apply fetches the configured record and copies its secrets into the empty
// fields of s. The record password becomes the client secret only when no
// other credential is configured. It returns the names of the filled fields.
func Apply(s *settings.Settings, f Fetcher, log *slog.Logger) ([]string, error) {
	if !s.Keeper.Enabled() {
		return nil, nil
	}
	secret, err := f.Fetch(s.Keeper.RecordUID)
	if err != nil {
		return nil, err
	}

	var filled []string
	if s.Provider == settings.ProviderMicrosoft && s.Auth.Method() == "" && secret.Password != "" {
		s.Auth.ClientSecret = secret.Password
		filled = append(filled, "auth.clientSecret")
	}
	fill := func(dst *string, label, key string) {
		if *dst == "" && secret.Fields[label] != "" {
			*dst = secret.Fields[label]
			filled = append(filled, key)
		}
	}
	if s.Password.Mode == settings.PasswordFixed {
		fill(&s.Password.Value, LabelDefaultPassword, "password.value")
	}
	fill(&s.Notify.Telegram.Token, LabelTelegramToken, "notify.telegram.token")
	if s.Report.SFTP.Enabled() {
		fill(&s.Report.SFTP.Password, LabelSFTPPassword, "report.sftp.password")
	}

	if log != nil {
		log.Info("Loaded secrets from Keeper", "record", secret.Title, "fields", strings.Join(filled, ","))
	}
	return filled, nil
}
