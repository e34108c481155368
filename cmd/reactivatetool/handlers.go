package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/ratelimit"
	"reactivatetool/internal/common/security"
	"reactivatetool/internal/credentials"
	"reactivatetool/internal/directory"
	"reactivatetool/internal/directory/entra"
	"reactivatetool/internal/directory/workspace"
	"reactivatetool/internal/history"
	"reactivatetool/internal/notify"
	"reactivatetool/internal/reactivation"
	"reactivatetool/internal/report"
	"reactivatetool/internal/roster"
	"reactivatetool/internal/secrets"
	"reactivatetool/internal/settings"
)

const publishTimeout = 2 * time.Minute

// Application permissions the Graph token should carry for a full run.
var requiredGraphRoles = []string{
	"User.ReadWrite.All",
	"GroupMember.ReadWrite.All",
	"MailboxSettings.ReadWrite",
	"Organization.Read.All",
}

// newProvider builds the directory provider selected in the settings.
// Tests replace it with a fake.
var newProvider = buildProvider

// executeAction dispatches to the appropriate handler based on action and
// returns the process exit code.
func executeAction(ctx context.Context, config *Config, log *slog.Logger, out io.Writer) (int, error) {
	if config.Action == ActionHistory {
		return exitOK, showHistory(ctx, config, log, out)
	}

	s, err := loadSettings(config, log)
	if err != nil {
		return exitError, err
	}

	switch config.Action {
	case ActionConnect:
		return exitOK, testConnect(ctx, s, log, out)
	case ActionCheckAuth:
		return exitOK, checkAuth(ctx, s, log, out)
	default:
		return runRoster(ctx, config, s, log, out)
	}
}

// loadSettings reads the configuration file, applies -csv and Keeper secrets
// and validates the result.
func loadSettings(config *Config, log *slog.Logger) (*settings.Settings, error) {
	s, err := settings.Read(config.ConfigPath, ".env")
	if err != nil {
		return nil, err
	}
	if config.CSVPath != "" {
		s.CSVPath = config.CSVPath
	}
	if s.Keeper.Enabled() {
		fetcher, err := secrets.NewKeeper(s.Keeper.Config)
		if err != nil {
			return nil, fmt.Errorf("keeper secrets manager: %w", err)
		}
		if _, err := secrets.Apply(s, fetcher, log); err != nil {
			return nil, fmt.Errorf("keeper secrets manager: %w", err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log.Debug("Configuration loaded", "provider", s.Provider, "csv", s.CSVPath,
		"tenantId", security.MaskGUID(s.Auth.TenantID), "authMethod", s.Auth.Method())
	return s, nil
}

func buildProvider(s *settings.Settings, log *slog.Logger) (directory.Provider, error) {
	if s.Provider == settings.ProviderGoogle {
		p, err := workspace.New(s.Google.CredentialsPath, workspace.Config{
			AdminSubject: s.Google.AdminSubject,
			Customer:     s.Google.Customer,
		}, log)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	cred, err := credentials.New(s.Auth, log)
	if err != nil {
		return nil, err
	}
	p, err := entra.New(cred, entra.Config{
		TenantID:      s.Auth.TenantID,
		Organization:  s.Organization,
		UsageLocation: s.UsageLocation,
	}, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newRunner(s *settings.Settings, p directory.Provider, opts reactivation.Options, log *slog.Logger, extra ...reactivation.Option) *reactivation.Runner {
	opts.ConnectAttempts = s.Connect.MaxAttempts
	opts.ConnectDelay = s.Connect.RetryDelay
	opts.MaxRetries = s.MaxRetries
	opts.RetryDelay = s.RetryDelay
	all := append([]reactivation.Option{reactivation.WithLogger(log)}, extra...)
	return reactivation.New(p, opts, all...)
}

// testConnect proves the credentials reach the directory.
func testConnect(ctx context.Context, s *settings.Settings, log *slog.Logger, out io.Writer) error {
	p, err := newProvider(s, log)
	if err != nil {
		return err
	}
	if err := newRunner(s, p, reactivation.Options{Action: ActionConnect}, log).Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s directory successfully.\n", p.Name())
	return nil
}

// checkAuth acquires tokens and prints what the app registration is allowed
// to do. For Google it can only prove delegation works by connecting.
func checkAuth(ctx context.Context, s *settings.Settings, log *slog.Logger, out io.Writer) error {
	if s.Provider == settings.ProviderGoogle {
		if err := testConnect(ctx, s, log, out); err != nil {
			return err
		}
		fmt.Fprintf(out, "Service account can act as %s.\n", s.Google.AdminSubject)
		return nil
	}

	cred, err := credentials.New(s.Auth, log)
	if err != nil {
		return err
	}
	info, err := credentials.Inspect(ctx, cred, credentials.GraphScope)
	if info == nil {
		return err
	}
	printTokenInfo(out, info, err)
	if missing := credentials.MissingRoles(info.Roles, requiredGraphRoles); len(missing) > 0 {
		fmt.Fprintf(out, "  Missing roles: %s\n", strings.Join(missing, ", "))
		log.Warn("Application is missing Graph permissions", "roles", strings.Join(missing, ","))
	}

	if s.Organization != "" {
		exo, err := credentials.Inspect(ctx, cred, credentials.ExchangeScope)
		if exo == nil {
			return err
		}
		printTokenInfo(out, exo, err)
		if missing := credentials.MissingRoles(exo.Roles, []string{"Exchange.ManageAsApp"}); len(missing) > 0 {
			fmt.Fprintf(out, "  Missing roles: %s\n", strings.Join(missing, ", "))
		}
	}
	return nil
}

func printTokenInfo(out io.Writer, info *credentials.TokenInfo, claimsErr error) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Token for %s\n", info.Scope)
	fmt.Fprintln(out, "------------------")
	fmt.Fprintf(out, "Expires at: %s\n", info.ExpiresOn.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(out, "Valid for: %s\n", time.Until(info.ExpiresOn).Round(time.Second))
	fmt.Fprintf(out, "Token (truncated): %s\n", security.MaskAccessToken(info.Token))
	if claimsErr != nil {
		fmt.Fprintf(out, "  (Could not parse JWT claims: %v)\n", claimsErr)
		return
	}
	fmt.Fprintf(out, "  Application Name: %s\n", info.AppName)
	fmt.Fprintf(out, "  Assigned Roles: %s\n", info.RolesString())
}

// runRoster processes the CSV with the steps of the selected action.
func runRoster(ctx context.Context, config *Config, s *settings.Settings, log *slog.Logger, out io.Writer) (int, error) {
	steps, err := reactivation.StepsFor(config.Action)
	if err != nil {
		return exitError, err
	}
	if s.CSVPath == "" {
		return exitError, fmt.Errorf("no CSV file: set csvPath in the configuration or use -csv")
	}
	records, rowErrs, err := roster.Read(s.CSVPath)
	if err != nil {
		return exitError, err
	}
	if config.Email != "" {
		records = roster.Filter(records, config.Email)
		rowErrs = nil
		if len(records) == 0 {
			return exitError, fmt.Errorf("%s is not listed in %s", config.Email, s.CSVPath)
		}
	}
	log.Info("Loaded CSV", "path", s.CSVPath, "records", len(records), "invalid", len(rowErrs))

	provider, err := newProvider(s, log)
	if err != nil {
		return exitError, err
	}

	opts := reactivation.Options{
		Action: config.Action,
		Steps:  steps,
		WhatIf: config.WhatIf,
		Password: reactivation.PasswordPolicy{
			Length:      s.Password.Length,
			ForceChange: s.Password.ForceChange,
		},
		Mailbox: directory.MailboxOptions{
			Unhide:           s.Mailbox.Unhide,
			EnableProtocols:  s.Mailbox.EnableProtocols,
			ClearForwarding:  s.Mailbox.ClearForwarding,
			DisableAutoReply: s.Mailbox.DisableAutoReply,
			ConvertToRegular: s.Mailbox.ConvertToRegular,
		},
		GroupsFor:   s.GroupsFor,
		LicensesFor: s.LicensesFor,
	}
	if s.Password.Mode == settings.PasswordFixed {
		opts.Password.Fixed = s.Password.Value
	}
	limiter := ratelimit.New(s.RateLimit)
	log.Debug("Rate limit", "enabled", limiter.Enabled(), "rps", limiter.RPS(), "limit", limiter.String())
	extra := []reactivation.Option{reactivation.WithRateLimiter(limiter)}

	audit, err := logger.OpenAudit(config.AuditFormat, "", toolName, config.Action)
	if err != nil {
		log.Warn("Could not open audit file, continuing without it", "error", err)
	} else {
		defer audit.Close()
		extra = append(extra, reactivation.WithAudit(audit))
		log.Info("Audit file", "path", audit.Path())
	}

	if !s.History.Disabled {
		if store, err := openHistory(s); err != nil {
			log.Warn("Could not open history, continuing without it", "error", err)
		} else {
			defer store.Close()
			extra = append(extra, reactivation.WithLedger(store))
		}
	}

	if needsPasswordFile(opts, s) {
		path := passwordFilePath(s, time.Now())
		pf, err := reactivation.OpenPasswordFile(path)
		if err != nil {
			return exitError, err
		}
		defer pf.Close()
		extra = append(extra, reactivation.WithPasswordFile(pf))
		log.Info("Generated passwords will be written to file", "path", path)
	}

	runner := newRunner(s, provider, opts, log, extra...)
	if err := runner.Connect(ctx); err != nil {
		return exitError, err
	}
	sum := runner.Run(ctx, records, rowErrs)

	auditPath := ""
	if audit != nil {
		auditPath = audit.Path()
		if err := audit.Close(); err != nil {
			log.Warn("Failed to close audit file", "error", err)
		}
	}

	if err := printSummary(out, config.Output, sum); err != nil {
		return exitError, err
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	publish(pubCtx, s, sum, auditPath, log)

	switch {
	case sum.Cancelled:
		return exitError, nil
	case config.Strict && sum.HasFailures():
		return exitFailures, nil
	}
	return exitOK, nil
}

func needsPasswordFile(opts reactivation.Options, s *settings.Settings) bool {
	if opts.WhatIf || s.Password.Mode != settings.PasswordGenerate {
		return false
	}
	for _, st := range opts.Steps {
		if st == reactivation.StepPassword {
			return true
		}
	}
	return false
}

// passwordFilePath is password.outputPath, or a dated file in the working
// directory when none is configured.
func passwordFilePath(s *settings.Settings, now time.Time) string {
	if s.Password.OutputPath != "" {
		return s.Password.OutputPath
	}
	return fmt.Sprintf("%s_passwords_%s.csv", toolName, now.Format("2006-01-02"))
}

func openHistory(s *settings.Settings) (*history.Store, error) {
	path := s.History.Path
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}

// publish sends the summary to Telegram and uploads the audit file. Both are
// best effort.
func publish(ctx context.Context, s *settings.Settings, sum *reactivation.Summary, auditPath string, log *slog.Logger) {
	if s.Report.SFTP.Enabled() && auditPath != "" {
		c := s.Report.SFTP
		remote, err := report.Upload(ctx, report.Config{
			Host: c.Host, Port: c.Port, User: c.User, Password: c.Password,
			RemoteDir: c.RemoteDir, HostKey: c.HostKey,
		}, auditPath, log)
		if err != nil {
			log.Warn("Audit upload failed", "error", err)
		} else {
			log.Info("Audit file uploaded", "remote", remote)
		}
	}

	if s.Notify.Telegram.Enabled() {
		tg, err := notify.NewTelegram(s.Notify.Telegram.Token, s.Notify.Telegram.ChatID, "")
		if err == nil {
			err = tg.Notify(ctx, notificationText(sum))
		}
		if err != nil {
			log.Warn("Telegram notification failed", "error", err)
		} else {
			log.Info("Telegram notification sent")
		}
	}
}

// notificationText is the summary plus the masked addresses that failed.
func notificationText(sum *reactivation.Summary) string {
	var b strings.Builder
	b.WriteString(toolName + ": ")
	b.WriteString(sum.String())
	var failed []string
	for _, r := range sum.Results {
		if r.Outcome == reactivation.OutcomeFailed || r.Outcome == reactivation.OutcomeInvalid {
			failed = append(failed, security.MaskEmail(r.Record.Email))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "failed: %s\n", strings.Join(failed, ", "))
	}
	return b.String()
}

func printSummary(out io.Writer, format string, sum *reactivation.Summary) error {
	if format == OutputJSON {
		return printJSON(out, sum)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, sum.String())
	for _, r := range sum.Results {
		if r.Outcome == reactivation.OutcomeSuccess {
			continue
		}
		fmt.Fprintf(out, "  %-8s %s\n", r.Outcome, r.Record.Email)
		for _, st := range r.Steps {
			if st.Status == reactivation.StatusWarning || st.Status == reactivation.StatusError {
				fmt.Fprintf(out, "           %s %s: %s\n", st.Step, st.Status, st.Detail)
			}
		}
	}
	return nil
}

func printJSON(out io.Writer, data interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// showHistory prints the recent runs, or the steps recorded for -email. The
// configuration file is optional here; without it the default history path is used.
func showHistory(ctx context.Context, config *Config, log *slog.Logger, out io.Writer) error {
	s, err := settings.Read(config.ConfigPath, ".env")
	if err != nil {
		if !errors.Is(err, settings.ErrConfigNotFound) {
			return err
		}
		s = &settings.Settings{}
	}
	path := s.History.Path
	if path == "" {
		if path, err = history.DefaultPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no history at %s: %w", path, err)
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Debug("Reading history", "path", path)

	if config.Email != "" {
		steps, err := store.UserHistory(ctx, config.Email)
		if err != nil {
			return err
		}
		if config.Output == OutputJSON {
			return printJSON(out, steps)
		}
		if len(steps) == 0 {
			fmt.Fprintf(out, "No history for %s.\n", config.Email)
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tRUN\tACTION\tSTEP\tSTATUS\tDETAIL")
		for _, st := range steps {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", st.At.Local().Format("2006-01-02 15:04:05"), st.RunID, st.Action, st.Step, st.Status, st.Detail)
		}
		return w.Flush()
	}

	runs, err := store.RecentRuns(ctx, 0)
	if err != nil {
		return err
	}
	if config.Output == OutputJSON {
		return printJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tACTION\tPROVIDER\tMODE\tTOTAL\tOK\tPARTIAL\tFAILED\tINVALID")
	for _, r := range runs {
		mode := "live"
		if r.WhatIf {
			mode = "whatif"
		}
		if r.FinishedAt.IsZero() {
			mode += " (unfinished)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n", r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Action, r.Provider, mode, r.Total, r.Succeeded, r.Partial, r.Failed, r.Invalid)
	}
	return w.Flush()
}

// Ensure *history.Store satisfies the runner's ledger.
var _ reactivation.Ledger = (*history.Store)(nil)
