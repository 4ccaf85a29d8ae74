package outcome_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
)

func result(mark, awarded float64, correct bool) *outcome.TestResult {
	return outcome.NewTestResult(question.TestCase{Mark: mark}, correct, awarded, "")
}

func TestAddTestResultAccumulates(t *testing.T) {
	o := outcome.New(3, 3, false)
	o.AddTestResult(result(1, 1, true))
	o.AddTestResult(result(2, 0, false))

	require.Equal(t, 1, o.ErrorCount)
	require.InDelta(t, 1.0, o.ActualMark, 1e-9)
	require.False(t, o.AllCorrect())
	require.True(t, o.WasAborted(), "one expected result is missing")

	o.AddTestResult(result(0, 0, true))
	require.False(t, o.WasAborted())
}

func TestAddTestResultPanicsAfterTerminalStatus(t *testing.T) {
	o := outcome.New(1, 1, false)
	o.SetStatus(outcome.StatusSyntaxError, "bad indent")
	require.Panics(t, func() {
		o.AddTestResult(result(1, 1, true))
	})
}

func TestMarkAsFractionToleranceClamp(t *testing.T) {
	o := outcome.New(3, 1, false)
	o.AddTestResult(result(3, 3-1e-7, true))
	require.Equal(t, 1.0, o.MarkAsFraction(), "within tolerance clamps to full marks")
	require.True(t, o.AllCorrect())

	o2 := outcome.New(3, 1, false)
	o2.AddTestResult(result(3, 3-1e-3, true))
	require.Less(t, o2.MarkAsFraction(), 1.0)
	require.False(t, o2.AllCorrect())
}

func TestStatusQueries(t *testing.T) {
	o := outcome.New(1, 0, false)
	require.False(t, o.IsUngradable())

	o.SetStatus(outcome.StatusSandboxError, "overload")
	require.True(t, o.RunFailed())
	require.True(t, o.IsUngradable())
	require.Equal(t, "sandbox_error", o.Status.String())

	o2 := outcome.New(1, 0, false)
	o2.SetStatus(outcome.StatusBadCombinator, "bad")
	require.True(t, o2.CombinatorError())
	require.True(t, o2.IsUngradable())

	o3 := outcome.New(1, 0, false)
	o3.SetStatus(outcome.StatusSyntaxError, "bad")
	require.True(t, o3.HasSyntaxError())
	require.False(t, o3.IsUngradable(), "syntax errors are the submission's own fault")
}

func TestHiddenErrorCount(t *testing.T) {
	o := outcome.New(4, 4, false)

	visible := outcome.NewTestResult(question.TestCase{Mark: 1}, false, 0, "")
	o.AddTestResult(visible)

	hidden := outcome.NewTestResult(
		question.TestCase{Mark: 1, Display: question.DisplayHide}, false, 0, "")
	o.AddTestResult(hidden)

	gate := outcome.NewTestResult(
		question.TestCase{Mark: 1, HideRestIfFail: true}, false, 0, "")
	o.AddTestResult(gate)

	after := outcome.NewTestResult(question.TestCase{Mark: 1}, false, 0, "")
	o.AddTestResult(after)

	// The first failure is visible; the explicit HIDE row, the row after
	// the hide-rest gate, but not the gate itself, count as hidden.
	require.Equal(t, 2, o.HiddenErrorCount())
}

func TestShouldDisplay(t *testing.T) {
	cases := []struct {
		display question.Display
		correct bool
		want    bool
	}{
		{question.DisplayShow, false, true},
		{"", true, true},
		{question.DisplayHide, true, false},
		{question.DisplayHideIfFail, false, false},
		{question.DisplayHideIfFail, true, true},
		{question.DisplayHideIfSucceed, true, false},
		{question.DisplayHideIfSucceed, false, true},
	}
	for _, c := range cases {
		tr := outcome.NewTestResult(question.TestCase{Display: c.display}, c.correct, 0, "")
		require.Equal(t, c.want, tr.ShouldDisplay(), "display %q correct %v", c.display, c.correct)
	}
}

func TestTestResultField(t *testing.T) {
	tr := outcome.NewTestResult(question.TestCase{
		TestCode: "print(x)",
		Expected: "7",
		Mark:     1.5,
	}, true, 1.5, "7")

	require.Equal(t, "print(x)", tr.Field("testcode"))
	require.Equal(t, "7", tr.Field("expected"))
	require.Equal(t, "7", tr.Field("got"))
	require.Equal(t, "1.50", tr.Field("mark"))
	require.Equal(t, "1.50", tr.Field("awarded"))
	require.Contains(t, tr.Field("comment"), "Unknown field 'comment'")

	tr.ExtraFields = map[string]any{"comment": "nice  "}
	require.Equal(t, "nice", tr.Field("comment"))
}

func TestNewTestResultTidiesText(t *testing.T) {
	tr := outcome.NewTestResult(question.TestCase{
		TestCode: "code  \n",
		Expected: "out   ",
	}, true, 1, "got\tx")

	require.Equal(t, "code\n", tr.TestCode)
	require.Equal(t, "out\n", tr.Expected)
	require.Equal(t, `got\tx`+"\n", tr.Got)
}
