package grade

import (
	"encoding/json"
	"math"

	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
)

// fractionTolerance decides when a template grader's fraction counts as
// fully correct.
const fractionTolerance = 1e-6

// TemplateGrader interprets the run's own output as the grading decision:
// a JSON object with a numeric fraction in [0,1] plus optional overrides
// and extra display columns. Used when the question template generates a
// program that both runs the test and grades it.
//
// Not used for combinator runs; there an entire outcome is built from the
// output instead (see outcome.BuildCombinatorOutcome).
type TemplateGrader struct{}

func (g *TemplateGrader) Name() string { return TemplateGraderName }

func (g *TemplateGrader) Grade(output string, tc question.TestCase) *outcome.TestResult {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(output), &fields); err != nil {
		got := "Bad JSON output from grading run. Output was: " + output
		return outcome.NewTestResult(tc, false, 0, got)
	}

	var fraction float64
	raw, ok := fields["fraction"]
	if !ok || json.Unmarshal(raw, &fraction) != nil || fraction < 0 || fraction > 1 {
		got := "Missing or invalid fraction in grading run output. Output was: " + output
		return outcome.NewTestResult(tc, false, 0, got)
	}

	isCorrect := math.Abs(fraction-1.0) < fractionTolerance
	awarded := fraction * tc.Mark
	if raw, ok := fields["awarded"]; ok {
		var v float64
		if json.Unmarshal(raw, &v) == nil {
			awarded = v
		}
	}
	got := ""
	if raw, ok := fields["got"]; ok {
		_ = json.Unmarshal(raw, &got)
	}

	tr := outcome.NewTestResult(tc, isCorrect, awarded, got)
	if raw, ok := fields["abort"]; ok {
		_ = json.Unmarshal(raw, &tr.Abort)
	}

	// Remaining keys become author-defined display columns.
	for key, raw := range fields {
		switch key {
		case "fraction", "awarded", "got", "abort":
			continue
		}
		var v any
		if json.Unmarshal(raw, &v) == nil {
			if tr.ExtraFields == nil {
				tr.ExtraFields = map[string]any{}
			}
			tr.ExtraFields[key] = v
		}
	}
	return tr
}
