package reactivation

import (
	"fmt"
	"strings"

	"reactivatetool/internal/directory"
	"reactivatetool/internal/roster"
)

// Step names one directory operation applied to a user.
type Step string

const (
	StepValidate Step = "validate"
	StepLookup   Step = "lookup"
	StepEnable   Step = "enable"
	StepPassword Step = "password"
	StepMailbox  Step = "mailbox"
	StepGroups   Step = "groups"
	StepLicenses Step = "licenses"
	StepRevoke   Step = "revoke"
)

// AllSteps is the fixed execution order of a full reactivation.
var AllSteps = []Step{StepEnable, StepPassword, StepMailbox, StepGroups, StepLicenses, StepRevoke}

// Actions that process the roster.
const (
	ActionReactivate    = "reactivate"
	ActionEnable        = "enable"
	ActionResetPassword = "resetpassword"
	ActionClearMailbox  = "clearmailbox"
	ActionGroups        = "groups"
	ActionLicenses      = "licenses"
	ActionRevoke        = "revoke"
)

var actionSteps = map[string][]Step{
	ActionReactivate:    AllSteps,
	ActionEnable:        {StepEnable},
	ActionResetPassword: {StepPassword},
	ActionClearMailbox:  {StepMailbox},
	ActionGroups:        {StepGroups},
	ActionLicenses:      {StepLicenses},
	ActionRevoke:        {StepRevoke},
}

// StepsFor returns the steps an action runs, in execution order.
func StepsFor(action string) ([]Step, error) {
	steps, ok := actionSteps[strings.ToLower(action)]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	return steps, nil
}

// IsRosterAction reports whether action processes CSV records.
func IsRosterAction(action string) bool {
	_, ok := actionSteps[strings.ToLower(action)]
	return ok
}

// Status is the outcome of a single step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Outcome summarises a record.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
	OutcomeInvalid Outcome = "invalid"
)

// StepResult is one logged step. Multi-item steps (groups) produce one
// result per item.
type StepResult struct {
	Step   Step   `json:"step"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// RecordResult is everything done for one CSV record.
type RecordResult struct {
	Record  roster.Record   `json:"record"`
	User    *directory.User `json:"user,omitempty"`
	Steps   []StepResult    `json:"steps"`
	Outcome Outcome         `json:"outcome"`
	// Password is masked; the clear value only goes to the password file.
	Password string `json:"password,omitempty"`
}

func (r *RecordResult) add(step Step, status Status, detail string) StepResult {
	sr := StepResult{Step: step, Status: status, Detail: detail}
	r.Steps = append(r.Steps, sr)
	return sr
}

// detailCancelled marks steps that never ran because the run was cancelled.
const detailCancelled = "cancelled"

// outcome derives the record outcome from its step results. A record cut
// short by cancellation is failed.
func (r *RecordResult) outcome() Outcome {
	warned := false
	for _, s := range r.Steps {
		switch s.Status {
		case StatusError:
			return OutcomeFailed
		case StatusWarning:
			warned = true
		case StatusSkipped:
			if s.Detail == detailCancelled || strings.HasSuffix(s.Detail, ": "+detailCancelled) {
				return OutcomeFailed
			}
		}
	}
	if warned {
		return OutcomePartial
	}
	return OutcomeSuccess
}

// classify maps a step error to a status: nil is success, errors the
// directory considers benign are warnings, the rest are errors.
func classify(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case directory.IsWarning(err):
		return StatusWarning
	default:
		return StatusError
	}
}
