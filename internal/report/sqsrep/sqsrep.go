// Package sqsrep streams grading progress to an SQS response queue, for
// deployments where the LMS front end consumes results asynchronously.
package sqsrep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/report"
)

type sqsReporter struct {
	client   *sqs.Client
	queueURL string
	logger   *slog.Logger
}

// New creates a reporter that sends progress to the given response queue.
func New(ctx context.Context, region, queueURL string, logger *slog.Logger) (report.Reporter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &sqsReporter{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
		logger:   logger,
	}, nil
}

func (r *sqsReporter) send(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to marshal progress message", "error", err)
		return
	}
	_, err = r.client.SendMessage(context.TODO(), &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		r.logger.Error("failed to send progress message",
			"queue", r.queueURL, "error", err)
	}
}

func (r *sqsReporter) JobStarted(jobID string, q *question.Question, numTests int, isPrecheck bool) {
	r.send(report.NewStartJobMsg(jobID, q, numTests, isPrecheck))
}

func (r *sqsReporter) TestFinished(jobID string, testIdx int, tr *outcome.TestResult) {
	r.send(report.NewFinishTestMsg(jobID, testIdx, tr))
}

func (r *sqsReporter) JobFinished(jobID string, o *outcome.TestingOutcome) {
	r.send(report.NewFinishJobMsg(jobID, o))
}
