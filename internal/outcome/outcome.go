// Package outcome defines the aggregate result of one grading job: the
// per-test results, the running mark and the terminal status vocabulary
// shared with the renderer, the grade cache and the bulk tester.
package outcome

import (
	"fmt"
	"math"
)

// Status is the overall state of a testing outcome. StatusValid is the only
// state that accepts further test results; the rest are terminal errors.
type Status int

const (
	StatusValid Status = iota + 1
	StatusSyntaxError
	StatusBadCombinator
	StatusSandboxError
	StatusMissingPrototype
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusSyntaxError:
		return "syntax_error"
	case StatusBadCombinator:
		return "bad_combinator_output"
	case StatusSandboxError:
		return "sandbox_error"
	case StatusMissingPrototype:
		return "missing_prototype"
	}
	return fmt.Sprintf("status %d", int(s))
}

// Tolerance is the allowable difference between the actual and maximum mark
// for an outcome to still count as fully correct. Per-test marks are summed
// as floats, so exact equality is too strict.
const Tolerance = 1e-5

// TestingOutcome accumulates the results of running all tests on one
// submission. Built incrementally by the job runner via AddTestResult, or
// terminated early via SetStatus.
type TestingOutcome struct {
	Status       Status  `json:"status"`
	ErrorMessage string  `json:"errormessage,omitempty"`
	ErrorCount   int     `json:"errorcount"`
	IsPrecheck   bool    `json:"isprecheck"`
	MaxMark      float64 `json:"maxmark"`
	ActualMark   float64 `json:"actualmark"`

	NumTestsExpected int           `json:"numtestsexpected"`
	TestResults      []*TestResult `json:"testresults"`

	// SourceCodeLog holds every rendered program of the job when the
	// question enables source debugging.
	SourceCodeLog []string `json:"sourcecodelog,omitempty"`

	// Combinator is set only for outcomes built from a self-grading
	// combined run; nil for the row-per-test graders.
	Combinator *CombinatorFeedback `json:"combinator,omitempty"`
}

func New(maxMark float64, numTestsExpected int, isPrecheck bool) *TestingOutcome {
	return &TestingOutcome{
		Status:           StatusValid,
		MaxMark:          maxMark,
		NumTestsExpected: numTestsExpected,
		IsPrecheck:       isPrecheck,
	}
}

// SetStatus moves the outcome to a terminal error state with a message
// suitable for display. Irreversible.
func (o *TestingOutcome) SetStatus(status Status, message string) {
	o.Status = status
	o.ErrorMessage = message
}

// AddTestResult appends a result and accumulates its mark. Calling it on an
// outcome that has left StatusValid is a programming error.
func (o *TestingOutcome) AddTestResult(tr *TestResult) {
	if o.Status != StatusValid {
		panic(fmt.Sprintf("AddTestResult on outcome with status %s", o.Status))
	}
	o.TestResults = append(o.TestResults, tr)
	o.ActualMark += tr.AwardedMark
	if !tr.IsCorrect {
		o.ErrorCount++
	}
}

// MarkAsFraction returns the achieved fraction of the maximum mark,
// clamped to exactly 1.0 when within Tolerance of full marks.
func (o *TestingOutcome) MarkAsFraction() float64 {
	fraction := o.ActualMark / o.MaxMark
	if math.Abs(fraction-1.0) < Tolerance {
		return 1.0
	}
	return fraction
}

func (o *TestingOutcome) AllCorrect() bool {
	return o.MarkAsFraction() == 1.0
}

// WasAborted reports that testing stopped before every expected test ran.
func (o *TestingOutcome) WasAborted() bool {
	return len(o.TestResults) != o.NumTestsExpected
}

func (o *TestingOutcome) RunFailed() bool {
	return o.Status == StatusSandboxError
}

func (o *TestingOutcome) HasSyntaxError() bool {
	return o.Status == StatusSyntaxError
}

func (o *TestingOutcome) CombinatorError() bool {
	return o.Status == StatusBadCombinator
}

// IsUngradable reports the statuses that are authoring or infrastructure
// faults rather than properties of the submission.
func (o *TestingOutcome) IsUngradable() bool {
	return o.RunFailed() || o.CombinatorError() || o.Status == StatusMissingPrototype
}

// HiddenErrorCount counts failing tests the student cannot see, honouring
// hide-rest-if-fail truncation.
func (o *TestingOutcome) HiddenErrorCount() int {
	count := 0
	hidingRest := false
	for _, tr := range o.TestResults {
		visible := !hidingRest && tr.ShouldDisplay()
		if !visible && !tr.IsCorrect {
			count++
		}
		if tr.HideRestIfFail && !tr.IsCorrect {
			hidingRest = true
		}
	}
	return count
}
