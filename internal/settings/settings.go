// Package settings loads the reactivation configuration file.
//
// Values are layered, lowest first:
//   - built-in defaults
//   - the JSON configuration file
//   - REACTIVATE_* environment variables, "__" separating nested keys
//     (REACTIVATE_AUTH__CLIENTSECRET -> auth.clientSecret)
//
// A .env file in the working directory is loaded into the process
// environment before the overlay is applied. Existing variables win.
package settings

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix    = "REACTIVATE_"
	envSeparator = "__"

	ProviderMicrosoft = "microsoft"
	ProviderGoogle    = "google"

	PasswordFixed    = "fixed"
	PasswordGenerate = "generate"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// Settings is the root configuration object.
type Settings struct {
	Provider      string           `koanf:"provider" validate:"oneof=microsoft google"`
	CSVPath       string           `koanf:"csvPath"`
	Organization  string           `koanf:"organization"`
	Auth          AuthSettings     `koanf:"auth"`
	Password      PasswordSettings `koanf:"password"`
	Groups        Assignment       `koanf:"groups"`
	Licenses      Assignment       `koanf:"licenses"`
	Mailbox       MailboxSettings  `koanf:"mailbox"`
	UsageLocation string           `koanf:"usageLocation" validate:"omitempty,len=2,alpha"`
	Connect       ConnectSettings  `koanf:"connect"`
	RateLimit     float64          `koanf:"rateLimit" validate:"gte=0"`
	MaxRetries    int              `koanf:"maxRetries" validate:"gte=0,lte=10"`
	RetryDelay    time.Duration    `koanf:"retryDelay" validate:"gte=0"`
	Google        GoogleSettings   `koanf:"google"`
	Keeper        KeeperSettings   `koanf:"keeper"`
	History       HistorySettings  `koanf:"history"`
	Report        ReportSettings   `koanf:"report"`
	Notify        NotifySettings   `koanf:"notify"`
}

// AuthSettings holds the Entra ID application credentials.
// Exactly one of ClientSecret, CertificatePath and Thumbprint is used.
type AuthSettings struct {
	TenantID            string `koanf:"tenantId"`
	ClientID            string `koanf:"clientId"`
	ClientSecret        string `koanf:"clientSecret"`
	CertificatePath     string `koanf:"certificatePath"`
	CertificatePassword string `koanf:"certificatePassword"`
	Thumbprint          string `koanf:"thumbprint" validate:"omitempty,hexadecimal,len=40"`
}

// Method names the configured credential kind, or "" when none is set.
func (a AuthSettings) Method() string {
	switch {
	case a.ClientSecret != "":
		return "secret"
	case a.CertificatePath != "":
		return "pfx"
	case a.Thumbprint != "":
		return "thumbprint"
	}
	return ""
}

func (a AuthSettings) methodCount() int {
	n := 0
	for _, v := range []string{a.ClientSecret, a.CertificatePath, a.Thumbprint} {
		if v != "" {
			n++
		}
	}
	return n
}

type PasswordSettings struct {
	Mode        string `koanf:"mode" validate:"oneof=fixed generate"`
	Value       string `koanf:"value"`
	Length      int    `koanf:"length" validate:"gte=12,lte=128"`
	ForceChange bool   `koanf:"forceChange"`
	// OutputPath receives generated passwords as CSV (mode 0600).
	OutputPath string `koanf:"outputPath"`
}

// Assignment maps employee types to group names or licence SKUs.
type Assignment struct {
	Default        []string            `koanf:"default"`
	ByEmployeeType map[string][]string `koanf:"byEmployeeType"`
}

// For returns Default followed by the entries configured for employeeType
// (matched case-insensitively), without duplicates.
func (a Assignment) For(employeeType string) []string {
	out := make([]string, 0, len(a.Default))
	seen := make(map[string]bool)
	add := func(items []string) {
		for _, it := range items {
			it = strings.TrimSpace(it)
			key := strings.ToLower(it)
			if it == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, it)
		}
	}
	add(a.Default)
	et := strings.TrimSpace(employeeType)
	if et == "" {
		return out
	}
	for k, v := range a.ByEmployeeType {
		if strings.EqualFold(strings.TrimSpace(k), et) {
			add(v)
		}
	}
	return out
}

type MailboxSettings struct {
	Unhide           bool `koanf:"unhide"`
	EnableProtocols  bool `koanf:"enableProtocols"`
	ClearForwarding  bool `koanf:"clearForwarding"`
	DisableAutoReply bool `koanf:"disableAutoReply"`
	ConvertToRegular bool `koanf:"convertToRegular"`
}

// Any reports whether at least one mailbox cleanup is enabled.
func (m MailboxSettings) Any() bool {
	return m.Unhide || m.EnableProtocols || m.ClearForwarding || m.DisableAutoReply || m.ConvertToRegular
}

type ConnectSettings struct {
	MaxAttempts int           `koanf:"maxAttempts" validate:"gte=1,lte=10"`
	RetryDelay  time.Duration `koanf:"retryDelay" validate:"gte=0"`
}

type GoogleSettings struct {
	CredentialsPath string `koanf:"credentialsPath"`
	AdminSubject    string `koanf:"adminSubject"`
	Customer        string `koanf:"customer"`
}

type KeeperSettings struct {
	RecordUID string `koanf:"recordUid"`
	// Config is a base64 KSM device config. KSM_CONFIG_BASE64 takes precedence.
	Config string `koanf:"config"`
}

func (k KeeperSettings) Enabled() bool { return k.RecordUID != "" }

type HistorySettings struct {
	Path     string `koanf:"path"`
	Disabled bool   `koanf:"disabled"`
}

type ReportSettings struct {
	SFTP SFTPSettings `koanf:"sftp"`
}

type SFTPSettings struct {
	Host      string `koanf:"host"`
	Port      int    `koanf:"port"`
	User      string `koanf:"user"`
	Password  string `koanf:"password"`
	RemoteDir string `koanf:"remoteDir"`
	// HostKey is an optional SHA256 fingerprint ("SHA256:...") the server key must match.
	HostKey string `koanf:"hostKey"`
}

func (s SFTPSettings) Enabled() bool { return s.Host != "" }

type NotifySettings struct {
	Telegram TelegramSettings `koanf:"telegram"`
}

type TelegramSettings struct {
	Token  string `koanf:"token"`
	ChatID int64  `koanf:"chatId"`
}

func (t TelegramSettings) Enabled() bool { return t.Token != "" && t.ChatID != 0 }

// GroupsFor returns the groups a user of employeeType is added to.
func (s *Settings) GroupsFor(employeeType string) []string {
	return s.Groups.For(employeeType)
}

// LicensesFor returns the licence SKUs assigned to a user of employeeType.
func (s *Settings) LicensesFor(employeeType string) []string {
	return s.Licenses.For(employeeType)
}

var defaults = map[string]interface{}{
	"provider":                 ProviderMicrosoft,
	"password.mode":            PasswordGenerate,
	"password.length":          16,
	"password.forceChange":     true,
	"mailbox.unhide":           true,
	"mailbox.enableProtocols":  true,
	"mailbox.clearForwarding":  true,
	"mailbox.disableAutoReply": true,
	"mailbox.convertToRegular": true,
	"connect.maxAttempts":      3,
	"connect.retryDelay":       "5s",
	"maxRetries":               3,
	"retryDelay":               "2s",
	"google.customer":          "my_customer",
	"report.sftp.port":         22,
}

// Load reads path, applies the environment overlay and validates the result.
func Load(path string) (*Settings, error) {
	s, err := Read(path, ".env")
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Read loads defaults, the JSON file at path and the environment overlay
// without validating. dotenv names an optional .env file; "" skips it.
// Callers that fill secrets from another source validate afterwards.
func Read(path, dotenv string) (*Settings, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("cannot access configuration file: %w", err)
	}

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading %s: %w", dotenv, err)
		}
	}

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("setting default %s: %w", key, err)
		}
	}

	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	keys := knownKeys()
	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, interface{}) {
		return keys.envKey(name, value)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading %s* environment: %w", EnvPrefix, err)
	}

	s := &Settings{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	s.Password.Mode = strings.ToLower(strings.TrimSpace(s.Password.Mode))
	return s, nil
}

// keyIndex maps lower-cased koanf paths to their canonical spelling and
// remembers which paths hold lists.
type keyIndex struct {
	canonical map[string]string
	lists     map[string]bool
}

func knownKeys() keyIndex {
	idx := keyIndex{canonical: map[string]string{}, lists: map[string]bool{}}
	idx.walk(reflect.TypeOf(Settings{}), "")
	return idx
}

func (idx keyIndex) walk(t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		idx.canonical[strings.ToLower(path)] = path
		switch f.Type.Kind() {
		case reflect.Struct:
			if f.Type != reflect.TypeOf(time.Duration(0)) {
				idx.walk(f.Type, path)
			}
		case reflect.Slice:
			idx.lists[path] = true
		case reflect.Map:
			if f.Type.Elem().Kind() == reflect.Slice {
				idx.lists[path+".*"] = true
			}
		}
	}
}

// envKey converts REACTIVATE_GROUPS__BYEMPLOYEETYPE__CONTRACTOR into
// groups.byEmployeeType.contractor. The longest known prefix is rewritten to
// its canonical spelling and the remainder (map keys) is kept lower-case.
// Comma separated values become lists for list-typed keys.
func (idx keyIndex) envKey(name, value string) (string, interface{}) {
	raw := strings.TrimPrefix(name, EnvPrefix)
	parts := strings.Split(strings.ToLower(raw), strings.ToLower(envSeparator))
	if len(parts) == 0 || parts[0] == "" {
		return "", nil
	}

	key := strings.Join(parts, ".")
	isList := false
	for n := len(parts); n > 0; n-- {
		prefix := strings.Join(parts[:n], ".")
		canon, ok := idx.canonical[prefix]
		if !ok {
			continue
		}
		rest := parts[n:]
		key = canon
		if len(rest) > 0 {
			key += "." + strings.Join(rest, ".")
		}
		isList = (len(rest) == 0 && idx.lists[canon]) || (len(rest) == 1 && idx.lists[canon+".*"])
		break
	}

	if isList {
		var items []string
		for _, it := range strings.Split(value, ",") {
			if it = strings.TrimSpace(it); it != "" {
				items = append(items, it)
			}
		}
		return key, items
	}
	return key, value
}

// Validate applies struct tag rules and the provider-specific rules.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %s", describe(verrs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var problems []string
	switch s.Provider {
	case ProviderMicrosoft:
		problems = append(problems, s.validateMicrosoft()...)
	case ProviderGoogle:
		problems = append(problems, s.validateGoogle()...)
	}

	if s.Password.Mode == PasswordFixed && len(s.Password.Value) < 8 {
		problems = append(problems, "password.value must be at least 8 characters when password.mode is fixed")
	}
	if s.Report.SFTP.Enabled() {
		if err := validateSFTP(s.Report.SFTP); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if s.Notify.Telegram.Token != "" && s.Notify.Telegram.ChatID == 0 {
		problems = append(problems, "notify.telegram.chatId is required when a token is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func describe(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.TrimPrefix(fe.Namespace(), "Settings.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
