package secrets

import (
	"errors"
	"testing"

	"reactivatetool/internal/settings"
)

type fakeFetcher struct {
	secret *Secret
	err    error
	asked  string
}

func (f *fakeFetcher) Fetch(uid string) (*Secret, error) {
	f.asked = uid
	return f.secret, f.err
}

func keeperRecord() *Secret {
	return &Secret{
		UID:      "rec-1",
		Title:    "Reactivation app",
		Password: "app-secret",
		Fields: map[string]string{
			LabelDefaultPassword: "Welcome-Back-2024",
			LabelTelegramToken:   "123:abc",
			LabelSFTPPassword:    "sftp-pass",
		},
	}
}

func TestApply(t *testing.T) {
	s := &settings.Settings{
		Provider: settings.ProviderMicrosoft,
		Keeper:   settings.KeeperSettings{RecordUID: "rec-1"},
		Password: settings.PasswordSettings{Mode: settings.PasswordFixed},
		Report:   settings.ReportSettings{SFTP: settings.SFTPSettings{Host: "sftp.example.com"}},
	}
	f := &fakeFetcher{secret: keeperRecord()}

	filled, err := Apply(s, f, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if f.asked != "rec-1" {
		t.Errorf("fetched %q", f.asked)
	}
	if len(filled) != 4 {
		t.Errorf("filled = %v", filled)
	}
	if s.Auth.ClientSecret != "app-secret" {
		t.Errorf("ClientSecret = %q", s.Auth.ClientSecret)
	}
	if s.Password.Value != "Welcome-Back-2024" {
		t.Errorf("Password.Value = %q", s.Password.Value)
	}
	if s.Notify.Telegram.Token != "123:abc" || s.Report.SFTP.Password != "sftp-pass" {
		t.Errorf("token = %q, sftp = %q", s.Notify.Telegram.Token, s.Report.SFTP.Password)
	}
}

func TestApplyKeepsConfiguredValues(t *testing.T) {
	s := &settings.Settings{
		Provider: settings.ProviderMicrosoft,
		Keeper:   settings.KeeperSettings{RecordUID: "rec-1"},
		Auth:     settings.AuthSettings{CertificatePath: "app.pfx"},
		Password: settings.PasswordSettings{Mode: settings.PasswordGenerate},
		Notify:   settings.NotifySettings{Telegram: settings.TelegramSettings{Token: "mine"}},
	}
	filled, err := Apply(s, &fakeFetcher{secret: keeperRecord()}, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(filled) != 0 {
		t.Errorf("filled = %v, want nothing", filled)
	}
	if s.Auth.ClientSecret != "" {
		t.Error("client secret must not be set next to a certificate")
	}
	if s.Notify.Telegram.Token != "mine" {
		t.Errorf("token overwritten: %q", s.Notify.Telegram.Token)
	}
	if s.Report.SFTP.Password != "" {
		t.Error("sftp password set although sftp is disabled")
	}
}

func TestApplyDisabled(t *testing.T) {
	f := &fakeFetcher{err: errors.New("must not be called")}
	filled, err := Apply(&settings.Settings{}, f, nil)
	if err != nil || filled != nil || f.asked != "" {
		t.Errorf("filled = %v, err = %v, asked = %q", filled, err, f.asked)
	}
}

func TestApplyFetchError(t *testing.T) {
	s := &settings.Settings{Keeper: settings.KeeperSettings{RecordUID: "missing"}}
	_, err := Apply(s, &fakeFetcher{err: ErrRecordNotFound}, nil)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestNewKeeperRequiresConfig(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	if _, err := NewKeeper(""); !errors.Is(err, ErrNoConfig) {
		t.Errorf("err = %v, want ErrNoConfig", err)
	}
}

func TestFirstValue(t *testing.T) {
	tests := []struct {
		name   string
		fields []map[string]interface{}
		want   string
	}{
		{"none", nil, ""},
		{"value", []map[string]interface{}{{"value": []interface{}{" s3cret "}}}, "s3cret"},
		{"empty list", []map[string]interface{}{{"value": []interface{}{}}}, ""},
		{"not a string", []map[string]interface{}{{"value": []interface{}{42}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstValue(tt.fields); got != tt.want {
				t.Errorf("firstValue = %q, want %q", got, tt.want)
			}
		})
	}
}
