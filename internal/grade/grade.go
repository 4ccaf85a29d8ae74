// Package grade implements the grading strategies that turn one raw program
// output plus one test case into a test result. Graders are pure: they are
// never called for runs that themselves failed (compile error, timeout,
// sandbox fault); the job runner short-circuits those first.
package grade

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/textutil"
)

// Grader turns the output of one successful run into a test result.
type Grader interface {
	Name() string
	Grade(output string, tc question.TestCase) *outcome.TestResult
}

// Grader external names, as they appear in question configuration.
const (
	EqualityGraderName     = "EqualityGrader"
	NearEqualityGraderName = "NearEqualityGrader"
	RegexGraderName        = "RegexGrader"
	TemplateGraderName     = "TemplateGrader"
)

// DefaultGraderName is used when the question does not name a grader.
const DefaultGraderName = EqualityGraderName

// New returns the grader with the given external name.
func New(name string) (Grader, error) {
	switch name {
	case EqualityGraderName, "":
		return &EqualityGrader{}, nil
	case NearEqualityGraderName:
		return &NearEqualityGrader{}, nil
	case RegexGraderName:
		return &RegexGrader{}, nil
	case TemplateGraderName:
		return &TemplateGrader{}, nil
	}
	return nil, fmt.Errorf("unknown grader '%s'", name)
}

// EqualityGrader awards full marks iff output and expected are identical
// after cleaning (trailing white space and trailing blank lines removed).
type EqualityGrader struct{}

func (g *EqualityGrader) Name() string { return EqualityGraderName }

func (g *EqualityGrader) Grade(output string, tc question.TestCase) *outcome.TestResult {
	cleanedOutput := textutil.Clean(output)
	isCorrect := cleanedOutput == textutil.Clean(tc.Expected)
	awarded := 0.0
	if isCorrect {
		awarded = tc.Mark
	}
	return outcome.NewTestResult(tc, isCorrect, awarded, cleanedOutput)
}

// NearEqualityGrader is EqualityGrader made case-insensitive and
// whitespace-tolerant: blank lines are dropped and runs of spaces or tabs
// collapse to one space before comparison.
type NearEqualityGrader struct{}

func (g *NearEqualityGrader) Name() string { return NearEqualityGraderName }

func (g *NearEqualityGrader) Grade(output string, tc question.TestCase) *outcome.TestResult {
	cleanedOutput := textutil.Clean(output)
	cleanedExpected := textutil.Clean(tc.Expected)
	isCorrect := textutil.Reduce(cleanedOutput) == textutil.Reduce(cleanedExpected)
	awarded := 0.0
	if isCorrect {
		awarded = tc.Mark
	}
	return outcome.NewTestResult(tc, isCorrect, awarded, cleanedOutput)
}

// RegexGrader treats the expected field as a regular expression and awards
// full marks if it matches anywhere in the raw output. Multiline and
// dot-matches-newline modes are always on; authors who want a full match
// anchor the pattern themselves.
type RegexGrader struct{}

func (g *RegexGrader) Name() string { return RegexGraderName }

func (g *RegexGrader) Grade(output string, tc question.TestCase) *outcome.TestResult {
	pattern := "(?ms)" + strings.TrimRight(tc.Expected, " \t\n")
	re, err := regexp.Compile(pattern)
	if err != nil {
		got := fmt.Sprintf("Bad expected-output regular expression: %v", err)
		return outcome.NewTestResult(tc, false, 0, got)
	}
	isCorrect := re.MatchString(output)
	awarded := 0.0
	if isCorrect {
		awarded = tc.Mark
	}
	return outcome.NewTestResult(tc, isCorrect, awarded, output)
}
