// Package jobrunner orchestrates one grading job: it renders the question
// template around the submission, executes the result in the sandbox and
// grades what comes back. Combined runs (one sandbox execution for all
// tests) are attempted when the question allows it, falling back to a
// run per test when the combined program hits a runtime fault.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/codegrade/marker/internal/grade"
	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/report"
	"github.com/codegrade/marker/internal/sandbox"
)

// Job is one grading request: a question, a submission and which tests to
// run. TestCases overrides the question's own list when non-nil, which is
// how prechecks run the example subset only.
type Job struct {
	// JobID identifies the job in progress messages. Assigned if empty.
	JobID string

	Question    *question.Question
	Code        string
	Attachments map[string][]byte
	TestCases   []question.TestCase
	IsPrecheck  bool

	// AnswerLanguage is the student's chosen language for multi-language
	// questions; empty means the question's own language.
	AnswerLanguage string
}

// Runner executes grading jobs. Safe for concurrent use when its sandbox,
// file store and reporter are; the bulk tester shares one Runner across
// workers. The reporter may be nil.
//
// The runner never closes its sandbox: whoever constructed the client
// closes it once, after the last job, so many jobs can share one session
// and its cached language set.
type Runner struct {
	sandbox  sandbox.Sandbox
	renderer question.Renderer
	files    outcome.FileStore
	reporter report.Reporter
	logger   *slog.Logger
}

func New(sb sandbox.Sandbox, renderer question.Renderer, files outcome.FileStore, reporter report.Reporter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sandbox: sb, renderer: renderer, files: files, reporter: reporter, logger: logger}
}

// RunTests grades one job and always returns an outcome; faults in the
// question, the template or the sandbox become terminal outcome statuses
// rather than errors. The caller owns the sandbox's lifetime.
func (r *Runner) RunTests(ctx context.Context, job Job) *outcome.TestingOutcome {
	q := job.Question
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	testcases := job.TestCases
	if testcases == nil {
		testcases = q.TestCases
	}
	if r.reporter != nil {
		r.reporter.JobStarted(job.JobID, q, len(testcases), job.IsPrecheck)
	}

	maxMark := 0.0
	for _, tc := range testcases {
		maxMark += tc.Mark
	}
	if maxMark == 0 {
		maxMark = 1 // Avoid dividing by zero when all tests carry no mark.
	}

	switch q.Prototype {
	case question.PrototypeIsPrototype:
		o := outcome.New(maxMark, 0, job.IsPrecheck)
		o.SetStatus(outcome.StatusMissingPrototype,
			"This question cannot be run as it is a prototype")
		return r.finishJob(job.JobID, o)
	case question.PrototypeMissing:
		o := outcome.New(maxMark, 0, job.IsPrecheck)
		o.SetStatus(outcome.StatusMissingPrototype,
			fmt.Sprintf("This question was defined to be of type '%s' but that question type does not exist", q.PrototypeName))
		return r.finishJob(job.JobID, o)
	}

	grader, err := grade.New(q.GraderName)
	if err != nil {
		o := outcome.New(maxMark, 0, job.IsPrecheck)
		o.SetStatus(outcome.StatusMissingPrototype, "This question is broken: "+err.Error())
		return r.finishJob(job.JobID, o)
	}

	language := q.Language
	answerLang := job.AnswerLanguage
	if answerLang == "" {
		answerLang = language
	}

	files := make(map[string][]byte, len(q.SupportFiles)+len(job.Attachments))
	for name, data := range q.SupportFiles {
		files[name] = data
	}
	attachmentNames := make([]string, 0, len(job.Attachments))
	for name, data := range job.Attachments {
		files[name] = data
		attachmentNames = append(attachmentNames, name)
	}

	vars := map[string]any{
		"STUDENT_ANSWER":  job.Code,
		"IS_PRECHECK":     boolDigit(job.IsPrecheck),
		"ANSWER_LANGUAGE": answerLang,
		"ATTACHMENTS":     strings.Join(attachmentNames, ","),
	}

	run := runContext{
		runner:    r,
		job:       job,
		question:  q,
		grader:    grader,
		testcases: testcases,
		language:  language,
		files:     files,
		maxMark:   maxMark,
		vars:      vars,
	}

	if q.IsCombinator && (noStdins(testcases) || q.AllowMultiStdin || grader.Name() == grade.TemplateGraderName) {
		if o := r.runCombined(ctx, &run); o != nil {
			return o
		}
		r.logger.Debug("combined run inconclusive, running tests one at a time",
			"question", q.Name)
	}
	return r.runSingly(ctx, &run)
}

// runContext carries the per-job state shared between the combined and the
// one-at-a-time paths, including the rendered programs for the source log.
type runContext struct {
	runner    *Runner
	job       Job
	question  *question.Question
	grader    grade.Grader
	testcases []question.TestCase
	language  string
	files     map[string][]byte
	maxMark   float64
	vars      map[string]any

	sourceLog []string
}

func (rc *runContext) render(r *Runner, extra map[string]any) (string, error) {
	vars := make(map[string]any, len(rc.vars)+len(extra))
	for k, v := range rc.vars {
		vars[k] = v
	}
	for k, v := range extra {
		vars[k] = v
	}
	src, err := r.renderer.Render(rc.question.Template, vars)
	if err != nil {
		return "", err
	}
	if rc.question.ShowSource {
		rc.sourceLog = append(rc.sourceLog, src)
	}
	return src, nil
}

func (rc *runContext) finish(o *outcome.TestingOutcome) *outcome.TestingOutcome {
	o.SourceCodeLog = rc.sourceLog
	return rc.runner.finishJob(rc.job.JobID, o)
}

// finishJob emits the terminal progress message and passes the outcome
// through.
func (r *Runner) finishJob(jobID string, o *outcome.TestingOutcome) *outcome.TestingOutcome {
	if r.reporter != nil {
		r.reporter.JobFinished(jobID, o)
	}
	return o
}

func (r *Runner) reportTest(jobID string, idx int, tr *outcome.TestResult) {
	if r.reporter != nil {
		r.reporter.TestFinished(jobID, idx, tr)
	}
}

// runCombined executes all tests in one sandbox run. A nil return means the
// combined run was inconclusive (the program hit a runtime fault) and the
// tests must be rerun one at a time. Template graders never fall back: the
// grader program's own failure is the final answer.
func (r *Runner) runCombined(ctx context.Context, rc *runContext) *outcome.TestingOutcome {
	q := rc.question

	src, err := rc.render(r, map[string]any{"TESTCASES": rc.testcases})
	if err != nil {
		o := outcome.New(rc.maxMark, 0, rc.job.IsPrecheck)
		o.SetStatus(outcome.StatusSyntaxError, templateErrorMessage(err))
		return rc.finish(o)
	}

	run := r.sandbox.Execute(ctx, src, rc.language, "", rc.files, q.SandboxParams)
	if run.Error != sandbox.ErrOK {
		o := outcome.New(rc.maxMark, 0, rc.job.IsPrecheck)
		o.SetStatus(outcome.StatusSandboxError, run.ErrorString())
		return rc.finish(o)
	}

	if rc.grader.Name() == grade.TemplateGraderName {
		return rc.finish(outcome.BuildCombinatorOutcome(run, rc.job.IsPrecheck, r.files))
	}

	switch run.Result {
	case sandbox.ResultCompileError:
		o := outcome.New(rc.maxMark, 0, rc.job.IsPrecheck)
		o.SetStatus(outcome.StatusSyntaxError, run.CompileInfo)
		return rc.finish(o)

	case sandbox.ResultSuccess:
		splitter, err := q.SplitterRe()
		if err != nil {
			o := outcome.New(rc.maxMark, 0, rc.job.IsPrecheck)
			o.SetStatus(outcome.StatusBadCombinator, err.Error())
			return rc.finish(o)
		}
		segments := splitter.Split(run.Stdout, -1)
		if len(segments) != len(rc.testcases) {
			o := outcome.New(rc.maxMark, 0, rc.job.IsPrecheck)
			o.SetStatus(outcome.StatusBadCombinator,
				fmt.Sprintf("Error in question: wrong number of test results from combined run. Expected %d, got %d",
					len(rc.testcases), len(segments)))
			return rc.finish(o)
		}
		o := outcome.New(rc.maxMark, len(rc.testcases), rc.job.IsPrecheck)
		for i, tc := range rc.testcases {
			tr := rc.grader.Grade(segments[i], tc)
			o.AddTestResult(tr)
			r.reportTest(rc.job.JobID, i, tr)
		}
		return rc.finish(o)
	}

	// Runtime fault in the combined program. One bad test would poison
	// the rest of the results, so rerun one test per sandbox call.
	return nil
}

// runSingly executes one sandbox run per test, stopping at the first test
// whose run does not complete normally.
func (r *Runner) runSingly(ctx context.Context, rc *runContext) *outcome.TestingOutcome {
	q := rc.question
	o := outcome.New(rc.maxMark, len(rc.testcases), rc.job.IsPrecheck)

	for i, tc := range rc.testcases {
		var extra map[string]any
		if q.IsCombinator {
			// Combinator templates expect a list even for a single test.
			extra = map[string]any{"TESTCASES": []question.TestCase{tc}}
		} else {
			extra = map[string]any{"TEST": tc}
		}

		src, err := rc.render(r, extra)
		if err != nil {
			o.SetStatus(outcome.StatusSyntaxError, templateErrorMessage(err))
			return rc.finish(o)
		}

		run := r.sandbox.Execute(ctx, src, rc.language, tc.Stdin, rc.files, q.SandboxParams)
		if run.Error != sandbox.ErrOK {
			o.SetStatus(outcome.StatusSandboxError, run.ErrorString())
			return rc.finish(o)
		}

		switch run.Result {
		case sandbox.ResultCompileError:
			o.SetStatus(outcome.StatusSyntaxError, run.CompileInfo)
			return rc.finish(o)

		case sandbox.ResultSuccess:
			tr := rc.grader.Grade(run.Stdout, tc)
			if tr.Abort {
				// An abort is a failure: the aborting test earns
				// nothing, whatever fraction the grader reported.
				tr.IsCorrect = false
				tr.AwardedMark = 0
			}
			o.AddTestResult(tr)
			r.reportTest(rc.job.JobID, i, tr)
			if tr.Abort {
				r.logger.Debug("grader aborted the test run",
					"question", q.Name, "test", i)
				return rc.finish(o)
			}

		default:
			tr := outcome.NewTestResult(tc, false, 0, makeErrorMessage(run))
			o.AddTestResult(tr)
			r.reportTest(rc.job.JobID, i, tr)
			r.logger.Debug("test run failed, aborting remaining tests",
				"question", q.Name, "test", i, "result", run.Result.String())
			return rc.finish(o)
		}
	}
	return rc.finish(o)
}

// makeErrorMessage renders a failed run as the "got" text of its result
// row: the failure kind banner, the signal if any, then everything the run
// printed.
func makeErrorMessage(run *sandbox.RunResult) string {
	msg := fmt.Sprintf("***%s***", run.Result)
	if run.Signal != 0 {
		msg += fmt.Sprintf(" (signal %d)", run.Signal)
	}
	for _, part := range []string{run.CompileInfo, run.Stdout, run.Stderr} {
		if strings.TrimSpace(part) != "" {
			msg += "\n" + part
		}
	}
	return msg
}

func templateErrorMessage(err error) string {
	var terr *question.TemplateError
	if errors.As(err, &terr) {
		return terr.Error()
	}
	return "template error: " + err.Error()
}

func noStdins(testcases []question.TestCase) bool {
	for _, tc := range testcases {
		if tc.Stdin != "" {
			return false
		}
	}
	return true
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
