// Package reactivation drives a directory.Provider over the roster: one
// record at a time, one step at a time, logging and counting every outcome.
package reactivation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reactivatetool/internal/common/logger"
	"reactivatetool/internal/common/ratelimit"
	"reactivatetool/internal/common/retry"
	"reactivatetool/internal/common/security"
	"reactivatetool/internal/directory"
	"reactivatetool/internal/history"
	"reactivatetool/internal/roster"
)

// ErrConnectFailed is returned when the provider cannot be reached within
// the configured number of attempts.
var ErrConnectFailed = errors.New("connection to directory failed")

// Ledger receives the run and its steps. *history.Store implements it.
type Ledger interface {
	StartRun(ctx context.Context, action, provider string, whatIf bool) (int64, error)
	RecordStep(ctx context.Context, runID int64, email, step, status, detail string) error
	FinishRun(ctx context.Context, runID int64, t history.Totals) error
}

// Options configure a Runner.
type Options struct {
	Action string
	Steps  []Step
	WhatIf bool

	ConnectAttempts int
	ConnectDelay    time.Duration
	MaxRetries      int
	RetryDelay      time.Duration

	Password PasswordPolicy
	Mailbox  directory.MailboxOptions
	// GroupsFor and LicensesFor resolve per-employee-type assignments.
	GroupsFor   func(employeeType string) []string
	LicensesFor func(employeeType string) []string
}

// Runner processes records sequentially against a provider.
type Runner struct {
	provider  directory.Provider
	opts      Options
	log       *slog.Logger
	limiter   *ratelimit.Limiter
	audit     logger.AuditLogger
	ledger    Ledger
	passwords *PasswordFile
	retryable retry.Classifier
	now       func() time.Time

	runID int64
}

// Option sets an optional collaborator.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.log = logger.OrDiscard(l) } }
func WithRateLimiter(l *ratelimit.Limiter) Option { return func(r *Runner) { r.limiter = l } }
func WithAudit(a logger.AuditLogger) Option { return func(r *Runner) { r.audit = a } }
func WithLedger(l Ledger) Option { return func(r *Runner) { r.ledger = l } }
func WithPasswordFile(p *PasswordFile) Option { return func(r *Runner) { r.passwords = p } }
func withClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }
func withClassifier(c retry.Classifier) Option { return func(r *Runner) { r.retryable = c } }

// New builds a runner. When the provider has an IsRetryable(error) bool
// method it classifies transient failures; otherwise the generic
// network/throttling classifier is used.
func New(p directory.Provider, opts Options, options ...Option) *Runner {
	if len(opts.Steps) == 0 {
		opts.Steps = AllSteps
	}
	if opts.ConnectAttempts < 1 {
		opts.ConnectAttempts = 1
	}
	r := &Runner{
		provider:  p,
		opts:      opts,
		log:       logger.Discard(),
		retryable: retry.IsRetryableError,
		now:       time.Now,
	}
	if c, ok := p.(interface{ IsRetryable(error) bool }); ok {
		r.retryable = c.IsRetryable
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Connect calls provider.Connect up to ConnectAttempts times with a fixed
// delay in between. The final failure wraps ErrConnectFailed.
func (r *Runner) Connect(ctx context.Context) error {
	err := retry.Fixed(ctx, r.opts.ConnectAttempts, r.opts.ConnectDelay, func(attempt int) error {
		r.log.Info("Connecting to directory", "provider", r.provider.Name(), "attempt", attempt, "maxAttempts", r.opts.ConnectAttempts)
		err := r.provider.Connect(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Warn("Connection attempt failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return nil
}

// Run processes records in order. invalid rows are counted and logged
// without touching the directory. Cancelling ctx stops the run between
// steps; the summary reflects the work done.
func (r *Runner) Run(ctx context.Context, records []roster.Record, invalid []roster.RowError) *Summary {
	sum := newSummary(r.opts.Action, r.provider.Name(), r.opts.WhatIf, r.now())
	sum.Total = len(records) + len(invalid)
	r.startLedger(ctx)

	for _, rowErr := range invalid {
		r.log.Warn("Skipping invalid row", "line", rowErr.Line, "email", rowErr.Email, "reason", rowErr.Reason)
		res := RecordResult{Record: roster.Record{Email: rowErr.Email, Line: rowErr.Line}, Outcome: OutcomeInvalid}
		sr := res.add(StepValidate, StatusError, fmt.Sprintf("line %d: %s", rowErr.Line, rowErr.Reason))
		r.emit(ctx, rowErr.Email, sr)
		sum.countStep(sr)
		sum.countRecord(OutcomeInvalid)
		sum.Results = append(sum.Results, res)
	}

	for i, rec := range records {
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}
		if err := r.limiter.Wait(ctx); err != nil {
			sum.Cancelled = true
			break
		}
		r.log.Info("Processing record", "index", i+1, "total", len(records), "email", rec.Email)

		res := r.process(ctx, rec, sum)
		sum.countRecord(res.Outcome)
		sum.Results = append(sum.Results, res)
		r.log.Info(fmt.Sprintf("Processed [%d/%d]", i+1, len(records)), "email", rec.Email, "outcome", res.Outcome)
		if ctx.Err() != nil {
			sum.Cancelled = true
			break
		}
	}

	sum.Finished = r.now()
	r.finishLedger(sum)
	return sum
}

func (r *Runner) process(ctx context.Context, rec roster.Record, sum *Summary) RecordResult {
	res := RecordResult{Record: rec}
	record := func(step Step, status Status, detail string) {
		sr := res.add(step, status, detail)
		sum.countStep(sr)
		r.emit(ctx, rec.Email, sr)
	}

	var user *directory.User
	err := r.call(ctx, func() error {
		var err error
		user, err = r.provider.FindUser(ctx, rec.Email)
		return err
	})
	if err != nil {
		record(StepLookup, StatusError, err.Error())
		res.Outcome = OutcomeFailed
		return res
	}
	res.User = user
	record(StepLookup, StatusSuccess, lookupDetail(user))

	for i, step := range r.opts.Steps {
		if ctx.Err() != nil {
			for _, rest := range r.opts.Steps[i:] {
				record(rest, StatusSkipped, detailCancelled)
			}
			break
		}
		if r.opts.WhatIf {
			record(step, StatusSkipped, "what if: "+r.describe(step, rec))
			continue
		}
		switch step {
		case StepEnable:
			r.stepEnable(ctx, user, rec, record)
		case StepPassword:
			res.Password = r.stepPassword(ctx, user, rec, record)
		case StepMailbox:
			r.stepMailbox(ctx, user, record)
		case StepGroups:
			r.stepGroups(ctx, user, rec, record)
		case StepLicenses:
			r.stepLicenses(ctx, user, rec, record)
		case StepRevoke:
			r.stepRevoke(ctx, user, record)
		}
	}
	res.Outcome = res.outcome()
	return res
}

type recordFunc func(step Step, status Status, detail string)

func (r *Runner) stepEnable(ctx context.Context, user *directory.User, rec roster.Record, record recordFunc) {
	wasEnabled := user.Enabled
	err := r.call(ctx, func() error { return r.provider.EnableUser(ctx, user, rec.EmployeeType) })
	if err != nil {
		record(StepEnable, classify(err), err.Error())
		return
	}
	detail := "account enabled"
	if wasEnabled {
		detail = "account already enabled"
	}
	if rec.EmployeeType != "" {
		detail += ", employee type " + rec.EmployeeType
	}
	record(StepEnable, StatusSuccess, detail)
}

func (r *Runner) stepPassword(ctx context.Context, user *directory.User, rec roster.Record, record recordFunc) string {
	pw, err := r.opts.Password.Next()
	if err != nil {
		record(StepPassword, StatusError, err.Error())
		return ""
	}
	force := r.opts.Password.ForceChange
	if err := r.call(ctx, func() error { return r.provider.ResetPassword(ctx, user, pw, force) }); err != nil {
		record(StepPassword, classify(err), err.Error())
		return ""
	}
	masked := security.MaskPassword(pw)
	detail := "password reset"
	if force {
		detail += ", change required at next sign-in"
	}
	if r.passwords != nil {
		if err := r.passwords.Add(rec.Email, pw, force); err != nil {
			record(StepPassword, StatusWarning, detail+"; failed to write password file: "+err.Error())
			return masked
		}
	}
	record(StepPassword, StatusSuccess, detail)
	return masked
}

func (r *Runner) stepMailbox(ctx context.Context, user *directory.User, record recordFunc) {
	if !r.opts.Mailbox.Any() {
		record(StepMailbox, StatusSkipped, "no mailbox options enabled")
		return
	}
	var changes []string
	err := r.call(ctx, func() error {
		var err error
		changes, err = r.provider.ClearMailboxRestrictions(ctx, user, r.opts.Mailbox)
		return err
	})
	detail := "nothing to clear"
	if len(changes) > 0 {
		detail = strings.Join(changes, "; ")
	}
	if err != nil {
		if len(changes) > 0 {
			detail += "; " + err.Error()
		} else {
			detail = err.Error()
		}
		record(StepMailbox, classify(err), detail)
		return
	}
	record(StepMailbox, StatusSuccess, detail)
}

func (r *Runner) stepGroups(ctx context.Context, user *directory.User, rec roster.Record, record recordFunc) {
	groups := r.groupsFor(rec.EmployeeType)
	if len(groups) == 0 {
		record(StepGroups, StatusSkipped, "no groups configured")
		return
	}
	for i, g := range groups {
		if ctx.Err() != nil {
			for _, rest := range groups[i:] {
				record(StepGroups, StatusSkipped, rest+": "+detailCancelled)
			}
			return
		}
		err := r.call(ctx, func() error { return r.provider.AddGroupMember(ctx, user, g) })
		switch {
		case err == nil:
			record(StepGroups, StatusSuccess, g+": added")
		case errors.Is(err, directory.ErrAlreadyMember):
			record(StepGroups, StatusWarning, g+": already a member")
		default:
			record(StepGroups, classify(err), err.Error())
		}
	}
}

func (r *Runner) stepLicenses(ctx context.Context, user *directory.User, rec roster.Record, record recordFunc) {
	skus := r.licensesFor(rec.EmployeeType)
	if len(skus) == 0 {
		record(StepLicenses, StatusSkipped, "no licences configured")
		return
	}
	err := r.call(ctx, func() error { return r.provider.AssignLicenses(ctx, user, skus) })
	if err != nil {
		record(StepLicenses, classify(err), err.Error())
		return
	}
	record(StepLicenses, StatusSuccess, "assigned "+strings.Join(skus, ", "))
}

func (r *Runner) stepRevoke(ctx context.Context, user *directory.User, record recordFunc) {
	if err := r.call(ctx, func() error { return r.provider.RevokeSessions(ctx, user) }); err != nil {
		record(StepRevoke, classify(err), err.Error())
		return
	}
	record(StepRevoke, StatusSuccess, "sign-in sessions revoked")
}

// describe says what a step would do, for what-if runs.
func (r *Runner) describe(step Step, rec roster.Record) string {
	switch step {
	case StepEnable:
		if rec.EmployeeType != "" {
			return "enable account, set employee type " + rec.EmployeeType
		}
		return "enable account"
	case StepPassword:
		if r.opts.Password.Fixed != "" {
			return "reset password to configured value"
		}
		return fmt.Sprintf("reset password to a generated %d-character value", r.opts.Password.Length)
	case StepMailbox:
		return "clear mailbox restrictions"
	case StepGroups:
		if g := r.groupsFor(rec.EmployeeType); len(g) > 0 {
			return "add to " + strings.Join(g, ", ")
		}
		return "no groups configured"
	case StepLicenses:
		if l := r.licensesFor(rec.EmployeeType); len(l) > 0 {
			return "assign " + strings.Join(l, ", ")
		}
		return "no licences configured"
	case StepRevoke:
		return "revoke sign-in sessions"
	}
	return string(step)
}

func (r *Runner) groupsFor(et string) []string {
	if r.opts.GroupsFor == nil {
		return nil
	}
	return r.opts.GroupsFor(et)
}

func (r *Runner) licensesFor(et string) []string {
	if r.opts.LicensesFor == nil {
		return nil
	}
	return r.opts.LicensesFor(et)
}

// call wraps one vendor call in the transient-error retry policy.
func (r *Runner) call(ctx context.Context, op func() error) error {
	return retry.Do(ctx, retry.Options{
		MaxRetries: r.opts.MaxRetries,
		BaseDelay:  r.opts.RetryDelay,
		Retryable:  r.retryable,
		Logger:     r.log,
	}, op)
}

// emit logs a step result and forwards it to the audit file and the ledger.
func (r *Runner) emit(ctx context.Context, email string, sr StepResult) {
	attrs := []any{"email", email, "step", sr.Step, "status", sr.Status}
	if sr.Detail != "" {
		attrs = append(attrs, "detail", sr.Detail)
	}
	switch sr.Status {
	case StatusSuccess:
		r.log.Info("Step succeeded", attrs...)
	case StatusWarning:
		r.log.Warn("Step completed with warning", attrs...)
	case StatusError:
		r.log.Error("Step failed", attrs...)
	default:
		r.log.Info("Step skipped", attrs...)
	}

	if r.audit != nil {
		row := []string{r.opts.Action, string(sr.Status), email, string(sr.Step), sr.Detail}
		if err := r.audit.WriteRow(row); err != nil {
			r.log.Warn("Failed to write audit row", "error", err)
		}
	}
	if r.ledger != nil && r.runID != 0 {
		// The ledger write must survive cancellation of the run.
		if err := r.ledger.RecordStep(context.WithoutCancel(ctx), r.runID, email, string(sr.Step), string(sr.Status), sr.Detail); err != nil {
			r.log.Warn("Failed to record history", "error", err)
		}
	}
}

func (r *Runner) startLedger(ctx context.Context) {
	if r.ledger == nil {
		return
	}
	id, err := r.ledger.StartRun(context.WithoutCancel(ctx), r.opts.Action, r.provider.Name(), r.opts.WhatIf)
	if err != nil {
		r.log.Warn("Failed to record run in history", "error", err)
		return
	}
	r.runID = id
}

func (r *Runner) finishLedger(sum *Summary) {
	if r.ledger == nil || r.runID == 0 {
		return
	}
	t := history.Totals{Total: sum.Total, Succeeded: sum.Succeeded, Partial: sum.Partial, Failed: sum.Failed, Invalid: sum.Invalid}
	if err := r.ledger.FinishRun(context.Background(), r.runID, t); err != nil {
		r.log.Warn("Failed to finish run in history", "error", err)
	}
}

func lookupDetail(u *directory.User) string {
	parts := []string{"found " + u.ID}
	if u.DisplayName != "" {
		parts = append(parts, u.DisplayName)
	}
	if u.Enabled {
		parts = append(parts, "enabled")
	} else {
		parts = append(parts, "disabled")
	}
	return strings.Join(parts, ", ")
}
