// Package termrep prints grading progress to the terminal. Used by the
// CLI's run command and by the bulk tester's verbose mode.
package termrep

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/codegrade/marker/api"
	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/textutil"
)

var (
	passMark = color.New(color.FgGreen).Sprint("PASS")
	failMark = color.New(color.FgRed).Sprint("FAIL")
	faint    = color.New(color.Faint).SprintFunc()
)

type TerminalReporter struct {
	StartedAt time.Time

	// ShowOutput prints expected/got for failing visible tests.
	ShowOutput bool
}

func New() *TerminalReporter { return &TerminalReporter{StartedAt: time.Now()} }

func (t *TerminalReporter) JobStarted(jobID string, q *question.Question, numTests int, isPrecheck bool) {
	mode := "grading"
	if isPrecheck {
		mode = "precheck"
	}
	fmt.Printf("== %s: %s (%s, %d tests) ==\n", mode, q.Name, q.Language, numTests)
	fmt.Println(faint("job " + jobID))
}

func (t *TerminalReporter) TestFinished(jobID string, testIdx int, tr *outcome.TestResult) {
	mark := passMark
	if !tr.IsCorrect {
		mark = failMark
	}
	hidden := ""
	if !tr.ShouldDisplay() {
		hidden = faint(" (hidden)")
	}
	fmt.Printf("%s test %d [%.2f/%.2f]%s\n", mark, testIdx, tr.AwardedMark, tr.Mark, hidden)

	if t.ShowOutput && !tr.IsCorrect && tr.ShouldDisplay() {
		fmt.Printf("  expected:\n%s\n", indent(textutil.TrimToRect(tr.Expected, api.MaxOutputHeight, api.MaxOutputWidth)))
		fmt.Printf("  got:\n%s\n", indent(textutil.TrimToRect(tr.Got, api.MaxOutputHeight, api.MaxOutputWidth)))
	}
}

func (t *TerminalReporter) JobFinished(jobID string, o *outcome.TestingOutcome) {
	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	if o.Status != outcome.StatusValid {
		fmt.Printf("== %s: %s ==\n", color.RedString(o.Status.String()), o.ErrorMessage)
		return
	}
	summary := fmt.Sprintf("mark %.1f%%", o.MarkAsFraction()*100)
	if o.AllCorrect() {
		summary = color.GreenString(summary)
	} else {
		summary = color.YellowString(fmt.Sprintf("%s, %d failing", summary, o.ErrorCount))
	}
	aborted := ""
	if o.WasAborted() {
		aborted = color.RedString(" (aborted early)")
	}
	fmt.Printf("== %s%s in %s ==\n", summary, aborted, dur)
}

func indent(s string) string {
	out := ""
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if start < i {
				out += "    " + s[start:i] + "\n"
			}
			start = i + 1
		}
	}
	return out
}
