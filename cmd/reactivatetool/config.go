package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/validation"
	"reactivatetool/internal/common/version"
	"reactivatetool/internal/reactivation"
)

const toolName = "reactivatetool"

// Actions that do not process the CSV.
const (
	ActionConnect   = "connect"
	ActionCheckAuth = "checkauth"
	ActionHistory   = "history"
)

// Output formats for the run summary.
const (
	OutputText = "text"
	OutputJSON = "json"
)

var allActions = []string{
	reactivation.ActionReactivate, reactivation.ActionEnable, reactivation.ActionResetPassword,
	reactivation.ActionClearMailbox, reactivation.ActionGroups, reactivation.ActionLicenses,
	reactivation.ActionRevoke, ActionConnect, ActionCheckAuth, ActionHistory,
}

// Config holds the command line options. Everything about the tenant lives
// in the JSON configuration file read by the settings package.
type Config struct {
	ConfigPath string
	CSVPath    string
	Action     string
	Email      string

	WhatIf bool
	Strict bool

	Output      string
	AuditFormat string

	// Logging
	VerboseMode bool
	LogLevel    string

	ShowVersion bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ConfigPath:  "config.json",
		Action:      reactivation.ActionReactivate,
		Output:      OutputText,
		AuditFormat: logger.FormatCSV,
		LogLevel:    "INFO",
	}
}

// envBinding maps a flag to its REACTIVATE* environment variable.
type envBinding struct {
	flag string
	env  string
	set  func(c *Config, v string)
}

func envBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

var envBindings = []envBinding{
	{"config", "REACTIVATECONFIG", func(c *Config, v string) { c.ConfigPath = v }},
	{"csv", "REACTIVATECSV", func(c *Config, v string) { c.CSVPath = v }},
	{"action", "REACTIVATEACTION", func(c *Config, v string) { c.Action = v }},
	{"email", "REACTIVATEEMAIL", func(c *Config, v string) { c.Email = v }},
	{"whatif", "REACTIVATEWHATIF", func(c *Config, v string) { c.WhatIf = envBool(v) }},
	{"strict", "REACTIVATESTRICT", func(c *Config, v string) { c.Strict = envBool(v) }},
	{"output", "REACTIVATEOUTPUT", func(c *Config, v string) { c.Output = v }},
	{"auditformat", "REACTIVATEAUDITFORMAT", func(c *Config, v string) { c.AuditFormat = v }},
	{"verbose", "REACTIVATEVERBOSE", func(c *Config, v string) { c.VerboseMode = envBool(v) }},
	{"loglevel", "REACTIVATELOGLEVEL", func(c *Config, v string) { c.LogLevel = v }},
}

// parseFlags parses args into a Config and then fills every option that was
// not given on the command line from its environment variable.
func parseFlags(args []string, getenv func(string) string, usageOut io.Writer) (*Config, error) {
	config := NewConfig()
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	fs.SetOutput(usageOut)

	fs.StringVar(&config.ConfigPath, "config", config.ConfigPath, "Path to the JSON configuration file (env: REACTIVATECONFIG)")
	fs.StringVar(&config.CSVPath, "csv", "", "CSV file with the accounts to process, overrides csvPath (env: REACTIVATECSV)")
	fs.StringVar(&config.Action, "action", config.Action, "Action to perform: "+strings.Join(allActions, ", ")+" (env: REACTIVATEACTION)")
	fs.StringVar(&config.Email, "email", "", "Process only this address from the CSV, or filter history (env: REACTIVATEEMAIL)")
	fs.BoolVar(&config.WhatIf, "whatif", false, "Look users up and report what would change without changing anything (env: REACTIVATEWHATIF)")
	fs.BoolVar(&config.Strict, "strict", false, "Exit with code 2 when any record failed (env: REACTIVATESTRICT)")
	fs.StringVar(&config.Output, "output", config.Output, "Summary output: text, json (env: REACTIVATEOUTPUT)")
	fs.StringVar(&config.AuditFormat, "auditformat", config.AuditFormat, "Audit file format: csv, json (env: REACTIVATEAUDITFORMAT)")
	fs.BoolVar(&config.VerboseMode, "verbose", false, "Enable verbose output (env: REACTIVATEVERBOSE)")
	fs.StringVar(&config.LogLevel, "loglevel", config.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR (env: REACTIVATELOGLEVEL)")
	fs.BoolVar(&config.ShowVersion, "version", false, "Show version information")
	// Handled in main before parsing; declared so it shows up in -help.
	fs.String("completion", "", "Print a shell completion script: bash, powershell")

	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, "%s - Account Reactivation Tool - Version %s\n\n", toolName, version.Get())
		fmt.Fprintf(w, "Re-enables accounts listed in a CSV file in Microsoft 365 or Google Workspace.\n\n")
		fmt.Fprintf(w, "Actions:\n")
		fmt.Fprintf(w, "  reactivate     Run every step below in order (default)\n")
		fmt.Fprintf(w, "  enable         Enable the account and set the employee type\n")
		fmt.Fprintf(w, "  resetpassword  Reset the password\n")
		fmt.Fprintf(w, "  clearmailbox   Clear mailbox restrictions\n")
		fmt.Fprintf(w, "  groups         Add to the configured groups\n")
		fmt.Fprintf(w, "  licenses       Assign the configured licences\n")
		fmt.Fprintf(w, "  revoke         Revoke sign-in sessions\n")
		fmt.Fprintf(w, "  connect        Test the connection to the directory\n")
		fmt.Fprintf(w, "  checkauth      Show the token and permissions of the app registration\n")
		fmt.Fprintf(w, "  history        Show recent runs, or the steps recorded for -email\n\n")
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(w, "\nEnvironment variables:\n")
		for _, b := range envBindings {
			fmt.Fprintf(w, "  %-22s -%s\n", b.env, b.flag)
		}
		fmt.Fprintf(w, "  REACTIVATE_<KEY>       configuration file keys, e.g. REACTIVATE_AUTH__CLIENTSECRET\n")
		fmt.Fprintf(w, "\nExamples:\n")
		fmt.Fprintf(w, "  %s -config config.json -whatif\n", toolName)
		fmt.Fprintf(w, "  %s -action resetpassword -email jane@example.com\n", toolName)
		fmt.Fprintf(w, "  %s -action history -email jane@example.com\n", toolName)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	provided := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		provided[f.Name] = true
	})
	for _, b := range envBindings {
		if provided[b.flag] {
			continue
		}
		if v := getenv(b.env); v != "" {
			b.set(config, v)
		}
	}
	return config, nil
}

// parseAndConfigureFlags parses os.Args.
func parseAndConfigureFlags() (*Config, error) {
	return parseFlags(os.Args[1:], os.Getenv, os.Stderr)
}

// validateConfiguration checks the options and normalizes their case.
func validateConfiguration(config *Config) error {
	config.Action = strings.ToLower(strings.TrimSpace(config.Action))
	valid := false
	for _, a := range allActions {
		if a == config.Action {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid action: %q (valid: %s)", config.Action, strings.Join(allActions, ", "))
	}

	config.Output = strings.ToLower(config.Output)
	if config.Output != OutputText && config.Output != OutputJSON {
		return fmt.Errorf("invalid output: %q (valid: text, json)", config.Output)
	}
	config.AuditFormat = strings.ToLower(config.AuditFormat)
	if config.AuditFormat != logger.FormatCSV && config.AuditFormat != logger.FormatJSON {
		return fmt.Errorf("invalid audit format: %q (valid: csv, json)", config.AuditFormat)
	}
	if !logger.IsValidLogLevel(config.LogLevel) {
		return fmt.Errorf("invalid log level: %q (valid: DEBUG, INFO, WARN, ERROR)", config.LogLevel)
	}

	if config.Email != "" {
		config.Email = validation.NormalizeEmail(config.Email)
		if err := validation.ValidateEmail(config.Email); err != nil {
			return fmt.Errorf("invalid -email: %w", err)
		}
	}
	if config.CSVPath != "" {
		if err := validation.ValidateFilePath(config.CSVPath, "CSV file"); err != nil {
			return err
		}
	}
	if config.WhatIf && !reactivation.IsRosterAction(config.Action) {
		return fmt.Errorf("-whatif only applies to actions that process the CSV")
	}
	return nil
}
