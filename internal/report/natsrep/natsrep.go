// Package natsrep streams grading progress over NATS. Each message is
// published to the subject the submitter named in its request, normally an
// inbox subject it subscribes to for the duration of one job.
package natsrep

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/report"
)

type natsReporter struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// New creates a reporter that publishes progress to the given subject.
func New(nc *nats.Conn, subject string, logger *slog.Logger) report.Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &natsReporter{nc: nc, subject: subject, logger: logger}
}

func (r *natsReporter) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal progress message", "error", err)
		return
	}
	if err := r.nc.Publish(r.subject, b); err != nil {
		r.logger.Error("failed to publish progress message",
			"subject", r.subject, "error", err)
	}
}

func (r *natsReporter) JobStarted(jobID string, q *question.Question, numTests int, isPrecheck bool) {
	r.send(report.NewStartJobMsg(jobID, q, numTests, isPrecheck))
}

func (r *natsReporter) TestFinished(jobID string, testIdx int, tr *outcome.TestResult) {
	r.send(report.NewFinishTestMsg(jobID, testIdx, tr))
}

func (r *natsReporter) JobFinished(jobID string, o *outcome.TestingOutcome) {
	r.send(report.NewFinishJobMsg(jobID, o))
}
