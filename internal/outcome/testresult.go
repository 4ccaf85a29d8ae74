package outcome

import (
	"fmt"
	"strings"

	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/textutil"
)

// TestResult is one row of grading output: the displayable fields of the
// originating test case plus what the student's program produced and what
// it earned. Immutable once created; owned by its TestingOutcome.
//
// Template graders may inject arbitrary extra columns; those land in
// ExtraFields rather than on the struct itself.
type TestResult struct {
	TestCode       string           `json:"testcode"`
	Stdin          string           `json:"stdin"`
	Expected       string           `json:"expected"`
	Extra          string           `json:"extra"`
	Mark           float64          `json:"mark"`
	Display        question.Display `json:"display"`
	HideRestIfFail bool             `json:"hiderestiffail"`
	UseAsExample   bool             `json:"useasexample"`
	Ordering       int              `json:"ordering"`

	IsCorrect   bool    `json:"iscorrect"`
	AwardedMark float64 `json:"awarded"`
	Got         string  `json:"got"`

	// Abort is a template-grader directive: stop the test loop after this
	// result. Never set by the built-in output comparators.
	Abort bool `json:"-"`

	ExtraFields map[string]any `json:"extrafields,omitempty"`
}

// NewTestResult copies the displayable test case fields (text-cleaned) and
// records the grading decision for it.
func NewTestResult(tc question.TestCase, isCorrect bool, awarded float64, got string) *TestResult {
	return &TestResult{
		TestCode:       textutil.Tidy(tc.TestCode),
		Stdin:          textutil.Tidy(tc.Stdin),
		Expected:       textutil.Tidy(tc.Expected),
		Extra:          textutil.Tidy(tc.Extra),
		Mark:           tc.Mark,
		Display:        tc.Display,
		HideRestIfFail: tc.HideRestIfFail,
		UseAsExample:   tc.UseAsExample,
		Ordering:       tc.Ordering,
		IsCorrect:      isCorrect,
		AwardedMark:    awarded,
		Got:            textutil.Tidy(got),
	}
}

// Field returns the named display value from the result, right-trimmed.
// Unknown names yield an explanatory placeholder so a misconfigured result
// column shows its own error instead of breaking the table.
func (tr *TestResult) Field(name string) string {
	switch name {
	case "testcode":
		return strings.TrimRight(tr.TestCode, " \t\n")
	case "stdin":
		return strings.TrimRight(tr.Stdin, " \t\n")
	case "expected":
		return strings.TrimRight(tr.Expected, " \t\n")
	case "extra":
		return strings.TrimRight(tr.Extra, " \t\n")
	case "got":
		return strings.TrimRight(tr.Got, " \t\n")
	case "mark":
		return fmt.Sprintf("%.2f", tr.Mark)
	case "awarded":
		return fmt.Sprintf("%.2f", tr.AwardedMark)
	}
	if v, ok := tr.ExtraFields[name]; ok {
		return strings.TrimRight(fmt.Sprintf("%v", v), " \t\n")
	}
	return fmt.Sprintf("Unknown field '%s'", name)
}

// ShouldDisplay reports whether this row is visible to students.
func (tr *TestResult) ShouldDisplay() bool {
	switch tr.Display {
	case question.DisplayHide:
		return false
	case question.DisplayHideIfFail:
		return tr.IsCorrect
	case question.DisplayHideIfSucceed:
		return !tr.IsCorrect
	}
	return true
}
