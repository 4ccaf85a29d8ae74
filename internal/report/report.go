// Package report streams grading progress to whoever submitted the job.
// Backends exist for the terminal, NATS and SQS; the job runner talks to
// the Reporter interface only.
package report

import (
	"github.com/codegrade/marker/api"
	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/textutil"
)

// Reporter receives progress events for one or more jobs. Implementations
// must tolerate concurrent calls for different jobs. Reporting is best
// effort: a lost progress message never fails the job.
type Reporter interface {
	JobStarted(jobID string, q *question.Question, numTests int, isPrecheck bool)
	TestFinished(jobID string, testIdx int, tr *outcome.TestResult)
	JobFinished(jobID string, o *outcome.TestingOutcome)
}

// NewStartJobMsg builds the wire message announcing one job.
func NewStartJobMsg(jobID string, q *question.Question, numTests int, isPrecheck bool) api.StartJob {
	return api.NewStartJob(jobID, q.Name, q.Language, numTests, isPrecheck)
}

// NewFinishTestMsg builds the wire message for one test result, trimming
// the output fields to the display rectangle and withholding them entirely
// for hidden rows.
func NewFinishTestMsg(jobID string, testIdx int, tr *outcome.TestResult) api.FinishTest {
	hidden := !tr.ShouldDisplay()
	var expected, got *string
	if !hidden {
		expected = trimmed(tr.Expected)
		got = trimmed(tr.Got)
	}
	return api.NewFinishTest(jobID, testIdx, tr.IsCorrect, tr.Mark, tr.AwardedMark, expected, got, hidden)
}

// NewFinishJobMsg builds the terminal wire message for one job.
func NewFinishJobMsg(jobID string, o *outcome.TestingOutcome) api.FinishJob {
	var errMsg *string
	if o.ErrorMessage != "" {
		errMsg = trimmed(o.ErrorMessage)
	}
	fraction := 0.0
	if o.Status == outcome.StatusValid {
		fraction = o.MarkAsFraction()
	}
	return api.NewFinishJob(jobID, o.Status.String(), errMsg, fraction, o.ErrorCount, o.WasAborted())
}

func trimmed(s string) *string {
	t := textutil.TrimToRect(s, api.MaxOutputHeight, api.MaxOutputWidth)
	return &t
}
