package question_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codegrade/marker/internal/question"
)

func TestSplitterRe(t *testing.T) {
	q := &question.Question{}
	re, err := q.SplitterRe()
	require.NoError(t, err)

	parts := re.Split("one\n#<ab@17943918#@>#\ntwo\n", -1)
	require.Equal(t, []string{"one\n", "two\n"}, parts)

	q.TestSplitter = `---NEXT---\n`
	re, err = q.SplitterRe()
	require.NoError(t, err)
	require.Len(t, re.Split("a\n---NEXT---\nb", -1), 2)

	q.TestSplitter = `([`
	_, err = q.SplitterRe()
	require.Error(t, err)
}

func TestSubstRenderer(t *testing.T) {
	r := &question.SubstRenderer{}

	out, err := r.Render("run({{ STUDENT_ANSWER }}, {{COUNT}})", map[string]any{
		"STUDENT_ANSWER": "f",
		"COUNT":          3,
	})
	require.NoError(t, err)
	require.Equal(t, "run(f, 3)", out)

	out, err = r.Render("{{ MISSING }}!", nil)
	require.NoError(t, err)
	require.Equal(t, "!", out, "non-strict rendering drops unknown variables")
}

func TestSubstRendererStrict(t *testing.T) {
	r := &question.SubstRenderer{Strict: true}

	_, err := r.Render("{{ MISSING }}", nil)
	require.Error(t, err)

	var terr *question.TemplateError
	require.ErrorAs(t, err, &terr)
	require.Contains(t, terr.Message, "MISSING")
}

func TestSubstRendererEncodesStructuredValues(t *testing.T) {
	r := &question.SubstRenderer{}
	out, err := r.Render("tests = {{ TESTCASES }}", map[string]any{
		"TESTCASES": []question.TestCase{{TestCode: "run()", Expected: "ok"}},
	})
	require.NoError(t, err)
	require.Contains(t, out, `"testcode":"run()"`)
	require.Contains(t, out, `"expected":"ok"`)
}
