// Package bulktest grades every question's reference answer in one sweep.
// Course staff run this after upgrading the sandbox or editing questions:
// a reference answer that no longer earns full marks means a broken
// question or a broken deployment, not a broken student.
package bulktest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/sync/errgroup"

	"github.com/codegrade/marker/internal/gradecache"
	"github.com/codegrade/marker/internal/jobrunner"
	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/qfile"
)

// Verdict classifies one question's bulk test result.
type Verdict string

const (
	VerdictPass  Verdict = "PASS"
	VerdictFail  Verdict = "FAIL"  // answer ran but did not earn full marks
	VerdictError Verdict = "ERROR" // grading itself failed
	VerdictSkip  Verdict = "SKIP"  // question carries no reference answer
)

// Result is the bulk test outcome for one question.
type Result struct {
	Spec     *qfile.Spec
	Outcome  *outcome.TestingOutcome // nil for VerdictSkip
	Verdict  Verdict
	CacheHit bool
	Elapsed  time.Duration
}

// Tester sweeps question sets through a shared job runner. The cache may
// be nil, in which case every answer is regraded.
type Tester struct {
	runner      *jobrunner.Runner
	cache       *gradecache.Cache
	concurrency int
	logger      *slog.Logger
}

func New(runner *jobrunner.Runner, cache *gradecache.Cache, concurrency int, logger *slog.Logger) *Tester {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tester{runner: runner, cache: cache, concurrency: concurrency, logger: logger}
}

// Run grades every spec's reference answer, at most concurrency at a time,
// and returns one result per spec in input order. Individual failures do
// not stop the sweep; ctx cancellation does.
func (t *Tester) Run(ctx context.Context, specs []*qfile.Spec) ([]Result, error) {
	results := make([]Result, len(specs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = t.runOne(ctx, spec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (t *Tester) runOne(ctx context.Context, spec *qfile.Spec) Result {
	if spec.Answer == "" {
		t.logger.Warn("question has no reference answer", "question", spec.Question.Name)
		return Result{Spec: spec, Verdict: VerdictSkip}
	}

	start := time.Now()
	q := spec.Question
	compute := func() *outcome.TestingOutcome {
		return t.runner.RunTests(ctx, jobrunner.Job{Question: q, Code: spec.Answer})
	}

	var o *outcome.TestingOutcome
	hit := false
	if t.cache != nil {
		fp := gradecache.Compute(q, q.TestCases, spec.Answer, q.Language, false)
		o, hit = t.cache.GetOrCompute(fp, compute)
	} else {
		o = compute()
	}

	verdict := VerdictPass
	switch {
	case o.Status != outcome.StatusValid:
		verdict = VerdictError
	case !o.AllCorrect() || o.WasAborted():
		verdict = VerdictFail
	}
	t.logger.Info("bulk tested question",
		"question", q.Name, "verdict", string(verdict), "cache_hit", hit)

	return Result{
		Spec:     spec,
		Outcome:  o,
		Verdict:  verdict,
		CacheHit: hit,
		Elapsed:  time.Since(start),
	}
}

// RenderSummary writes the sweep results as a table and returns the number
// of questions that did not pass (skipped ones count as passing).
func RenderSummary(w io.Writer, results []Result) int {
	if w == nil {
		w = os.Stdout
	}
	failed := 0

	tw := prettytable.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(prettytable.Row{"Question", "Language", "Verdict", "Mark", "Detail", "Time"})
	for _, r := range results {
		mark, detail := "", ""
		if r.Outcome != nil {
			switch r.Verdict {
			case VerdictError:
				detail = r.Outcome.Status.String() + ": " + r.Outcome.ErrorMessage
			default:
				mark = fmt.Sprintf("%.1f%%", r.Outcome.MarkAsFraction()*100)
				if r.Outcome.WasAborted() {
					detail = fmt.Sprintf("aborted after %d of %d tests",
						len(r.Outcome.TestResults), r.Outcome.NumTestsExpected)
				} else if r.Outcome.ErrorCount > 0 {
					detail = fmt.Sprintf("%d failing tests", r.Outcome.ErrorCount)
				}
			}
		}
		if r.Verdict == VerdictFail || r.Verdict == VerdictError {
			failed++
		}
		elapsed := r.Elapsed.Round(time.Millisecond).String()
		if r.CacheHit {
			elapsed += " (cached)"
		}
		tw.AppendRow(prettytable.Row{
			r.Spec.Question.Name,
			r.Spec.Question.Language,
			string(r.Verdict),
			mark,
			detail,
			elapsed,
		})
	}
	tw.SetStyle(prettytable.StyleColoredDark)
	verdictColor := text.Transformer(func(v interface{}) string {
		switch v.(string) {
		case string(VerdictPass):
			return text.FgHiGreen.Sprint(v)
		case string(VerdictFail):
			return text.FgHiYellow.Sprint(v)
		case string(VerdictError):
			return text.FgHiRed.Sprint(v)
		}
		return text.Faint.Sprint(v)
	})
	tw.SetColumnConfigs([]prettytable.ColumnConfig{
		{Name: "Verdict", Transformer: verdictColor, Align: text.AlignCenter},
	})
	tw.Render()
	return failed
}
