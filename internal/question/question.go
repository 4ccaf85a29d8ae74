// Package question holds the immutable inputs to a grading job: the test
// cases, the question configuration and the template renderer contract.
package question

import (
	"fmt"
	"regexp"

	"github.com/codegrade/marker/internal/sandbox"
)

// Display controls when a test case row is shown to the student.
type Display string

const (
	DisplayShow          Display = "SHOW"
	DisplayHide          Display = "HIDE"
	DisplayHideIfFail    Display = "HIDE_IF_FAIL"
	DisplayHideIfSucceed Display = "HIDE_IF_SUCCEED"
)

// TestCase is one author-defined test. Immutable during a grading run.
type TestCase struct {
	TestCode       string  `json:"testcode" toml:"testcode"`
	Stdin          string  `json:"stdin" toml:"stdin"`
	Expected       string  `json:"expected" toml:"expected"`
	Extra          string  `json:"extra" toml:"extra"`
	Mark           float64 `json:"mark" toml:"mark"`
	Display        Display `json:"display" toml:"display"`
	HideRestIfFail bool    `json:"hiderestiffail" toml:"hiderestiffail"`
	UseAsExample   bool    `json:"useasexample" toml:"useasexample"`
	Ordering       int     `json:"ordering" toml:"ordering"`
}

// DefaultTestSplitter separates per-test segments in combined-run output.
const DefaultTestSplitter = `#<ab@17943918#@>#\n`

// PrototypeState describes how the question's base template resolved.
type PrototypeState int

const (
	PrototypeOK PrototypeState = iota
	PrototypeMissing
	PrototypeIsPrototype // The question IS a prototype and cannot be run.
)

// Question is the configuration a job runs under. QuestionID and Version
// feed the grade cache fingerprint.
type Question struct {
	QuestionID string
	Version    int
	Name       string

	Template        string
	IsCombinator    bool
	AllowMultiStdin bool
	Prototype       PrototypeState
	PrototypeName   string // type name shown in missing-prototype messages

	GraderName string
	Language   string
	TestCases  []TestCase

	// SupportFiles are loaded into the sandbox working directory.
	SupportFiles map[string][]byte

	SandboxParams *sandbox.Params
	TestSplitter  string // regexp; empty means DefaultTestSplitter
	ShowSource    bool   // record rendered programs on the outcome
}

// SplitterRe compiles the configured test splitter pattern.
func (q *Question) SplitterRe() (*regexp.Regexp, error) {
	pat := q.TestSplitter
	if pat == "" {
		pat = DefaultTestSplitter
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, fmt.Errorf("failed to compile test splitter %q: %w", pat, err)
	}
	return re, nil
}

// TemplateError reports a malformed template or an undefined strict
// variable during rendering.
type TemplateError struct {
	Message string
}

func (e *TemplateError) Error() string {
	return "template error: " + e.Message
}

// Renderer turns a question template plus variables into runnable source
// text. Implemented externally; the job runner only consumes it.
type Renderer interface {
	Render(template string, vars map[string]any) (string, error)
}
