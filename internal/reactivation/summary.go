package reactivation

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// StepCounts are the per-status totals of one step.
type StepCounts struct {
	Success int `json:"success"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`
}

func (c *StepCounts) add(s Status) {
	switch s {
	case StatusSuccess:
		c.Success++
	case StatusWarning:
		c.Warning++
	case StatusError:
		c.Error++
	case StatusSkipped:
		c.Skipped++
	}
}

// Summary holds the counters of a run.
type Summary struct {
	Action    string               `json:"action"`
	Provider  string               `json:"provider"`
	WhatIf    bool                 `json:"whatIf"`
	Total     int                  `json:"total"`
	Succeeded int                  `json:"succeeded"`
	Partial   int                  `json:"partial"`
	Failed    int                  `json:"failed"`
	Invalid   int                  `json:"invalid"`
	Steps     map[Step]*StepCounts `json:"steps"`
	Cancelled bool                 `json:"cancelled,omitempty"`
	Started   time.Time            `json:"started"`
	Finished  time.Time            `json:"finished"`
	Results   []RecordResult       `json:"results,omitempty"`
}

func newSummary(action, provider string, whatIf bool, now time.Time) *Summary {
	return &Summary{Action: action, Provider: provider, WhatIf: whatIf, Steps: map[Step]*StepCounts{}, Started: now}
}

func (s *Summary) countStep(r StepResult) {
	c, ok := s.Steps[r.Step]
	if !ok {
		c = &StepCounts{}
		s.Steps[r.Step] = c
	}
	c.add(r.Status)
}

func (s *Summary) countRecord(o Outcome) {
	switch o {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomePartial:
		s.Partial++
	case OutcomeFailed:
		s.Failed++
	case OutcomeInvalid:
		s.Invalid++
	}
}

// Processed is the number of records that reached an outcome.
func (s *Summary) Processed() int {
	return s.Succeeded + s.Partial + s.Failed + s.Invalid
}

// HasFailures reports whether any record failed or was invalid.
func (s *Summary) HasFailures() bool {
	return s.Failed > 0 || s.Invalid > 0
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started).Round(time.Second)
}

// String renders a short multi-line report suitable for a terminal or chat.
func (s *Summary) String() string {
	var b strings.Builder
	mode := ""
	if s.WhatIf {
		mode = " (what if)"
	}
	fmt.Fprintf(&b, "%s via %s%s: %d/%d processed in %s\n", s.Action, s.Provider, mode, s.Processed(), s.Total, s.Duration())
	fmt.Fprintf(&b, "succeeded %d, partial %d, failed %d, invalid %d\n", s.Succeeded, s.Partial, s.Failed, s.Invalid)

	steps := make([]string, 0, len(s.Steps))
	for st := range s.Steps {
		steps = append(steps, string(st))
	}
	sort.Slice(steps, func(i, j int) bool { return stepOrder(Step(steps[i])) < stepOrder(Step(steps[j])) })
	for _, st := range steps {
		c := s.Steps[Step(st)]
		fmt.Fprintf(&b, "  %-9s ok %d, warn %d, err %d, skip %d\n", st, c.Success, c.Warning, c.Error, c.Skipped)
	}
	if s.Cancelled {
		b.WriteString("run cancelled before completion\n")
	}
	return b.String()
}

func stepOrder(s Step) int {
	switch s {
	case StepValidate:
		return -2
	case StepLookup:
		return -1
	}
	for i, st := range AllSteps {
		if st == s {
			return i
		}
	}
	return len(AllSteps)
}
