package bulktest_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegrade/marker/internal/bulktest"
	"github.com/codegrade/marker/internal/gradecache"
	"github.com/codegrade/marker/internal/jobrunner"
	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/qfile"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/sandbox"
)

// echoSandbox runs the "program" by echoing its source text, except that a
// source containing BOOM fails the sandbox call itself.
type echoSandbox struct{}

func (echoSandbox) Execute(_ context.Context, sourceText, _, _ string, _ map[string][]byte, _ *sandbox.Params) *sandbox.RunResult {
	if strings.Contains(sourceText, "BOOM") {
		return &sandbox.RunResult{Error: sandbox.ErrServerOverload}
	}
	return &sandbox.RunResult{Result: sandbox.ResultSuccess, Stdout: sourceText}
}

func (echoSandbox) Languages(context.Context) ([]string, error) { return []string{"python3"}, nil }
func (echoSandbox) Close()                                      {}

func spec(name, answer, expected string) *qfile.Spec {
	return &qfile.Spec{
		Question: &question.Question{
			QuestionID: name,
			Name:       name,
			Template:   "{{ STUDENT_ANSWER }}",
			Language:   "python3",
			TestCases: []question.TestCase{
				{TestCode: "run()", Expected: expected, Mark: 1},
			},
		},
		Answer: answer,
		Path:   name + ".toml",
	}
}

func TestRunSweep(t *testing.T) {
	runner := jobrunner.New(echoSandbox{}, &question.SubstRenderer{}, nil, nil, nil)
	tester := bulktest.New(runner, nil, 4, nil)

	specs := []*qfile.Spec{
		spec("good", "ok", "ok"),
		spec("drifted", "something else", "ok"),
		spec("broken", "BOOM", "ok"),
		spec("unanswered", "", "ok"),
	}

	results, err := tester.Run(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.Equal(t, bulktest.VerdictPass, results[0].Verdict)
	require.True(t, results[0].Outcome.AllCorrect())

	require.Equal(t, bulktest.VerdictFail, results[1].Verdict)
	require.Equal(t, bulktest.VerdictError, results[2].Verdict)
	require.Equal(t, outcome.StatusSandboxError, results[2].Outcome.Status)
	require.Equal(t, bulktest.VerdictSkip, results[3].Verdict)
	require.Nil(t, results[3].Outcome)
}

func TestRunUsesCache(t *testing.T) {
	runner := jobrunner.New(echoSandbox{}, &question.SubstRenderer{}, nil, nil, nil)
	cache, err := gradecache.New(t.TempDir(), nil)
	require.NoError(t, err)
	tester := bulktest.New(runner, cache, 2, nil)

	specs := []*qfile.Spec{spec("good", "ok", "ok")}

	results, err := tester.Run(context.Background(), specs)
	require.NoError(t, err)
	require.False(t, results[0].CacheHit)

	results, err = tester.Run(context.Background(), specs)
	require.NoError(t, err)
	require.True(t, results[0].CacheHit)
	require.Equal(t, bulktest.VerdictPass, results[0].Verdict)
}

func TestRenderSummary(t *testing.T) {
	runner := jobrunner.New(echoSandbox{}, &question.SubstRenderer{}, nil, nil, nil)
	tester := bulktest.New(runner, nil, 1, nil)

	results, err := tester.Run(context.Background(), []*qfile.Spec{
		spec("good", "ok", "ok"),
		spec("drifted", "nope", "ok"),
		spec("broken", "BOOM", "ok"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	failed := bulktest.RenderSummary(&buf, results)
	require.Equal(t, 2, failed)

	out := buf.String()
	require.Contains(t, out, "good")
	require.Contains(t, out, "drifted")
	require.Contains(t, out, "broken")
	require.Contains(t, out, "100.0%")
}
