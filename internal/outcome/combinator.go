package outcome

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/codegrade/marker/internal/sandbox"
)

// HTML marks a string as pre-rendered HTML: later display stages must pass
// it through untouched instead of escaping it.
type HTML string

// FileStore persists grader-emitted files and yields a URL for each.
// Implemented by internal/filestore; taken as an interface so outcome
// construction can be tested without touching disk.
type FileStore interface {
	Store(data []byte, suggestedName string) (string, error)
}

// allowedGraderFields are the only keys a combinator template grader may
// emit. Anything else fails the grading rather than being silently
// ignored, so author typos surface immediately.
var allowedGraderFields = map[string]bool{
	"fraction":        true,
	"prologuehtml":    true,
	"epiloguehtml":    true,
	"feedbackhtml":    true, // legacy alias for epiloguehtml
	"feedback_html":   true, // older legacy alias
	"testresults":     true,
	"files":           true,
	"columnformats":   true,
	"showdifferences": true,
	"showoutputonly":  true,
	"graderstate":     true,
	"instructorhtml":  true,
}

// CombinatorFeedback is the extra state of a self-grading combined run:
// author-supplied HTML, a free-form result table and any files the grader
// emitted. An outcome carrying it was built atomically from a single JSON
// blob; AddTestResult is never used on such an outcome.
type CombinatorFeedback struct {
	PrologueHTML   string `json:"prologuehtml,omitempty"`
	EpilogueHTML   string `json:"epiloguehtml,omitempty"`
	InstructorHTML string `json:"instructorhtml,omitempty"`

	// ResultTable is the grader-supplied table: a header row of column
	// names followed by data rows. Cells in %h columns are HTML values.
	ResultTable     [][]any  `json:"resulttable,omitempty"`
	ColumnFormats   []string `json:"columnformats,omitempty"`
	ShowDifferences bool     `json:"showdifferences,omitempty"`
	OutputOnly      bool     `json:"outputonly"`
	GraderState     string   `json:"graderstate,omitempty"`

	// Namespace prefixes the stored names of the grader's files, keeping
	// concurrent jobs' files apart.
	Namespace string            `json:"namespace,omitempty"`
	FileURLs  map[string]string `json:"fileurls,omitempty"`
}

// BuildCombinatorOutcome interprets one combined template-grader run and
// returns an outcome with its Combinator feedback populated. All failure
// modes yield StatusBadCombinator with a message for the question author;
// nothing panics on malformed grader output.
func BuildCombinatorOutcome(run *sandbox.RunResult, isPrecheck bool, store FileStore) *TestingOutcome {
	o := New(1, 0, isPrecheck)
	fb := &CombinatorFeedback{}
	o.Combinator = fb

	if run.Result != sandbox.ResultSuccess {
		msg := fmt.Sprintf("The template grader run failed.\nRun result: %s\nOutput: %s",
			run.Result, mergeNonEmpty("\n", run.CompileInfo, run.Stdout, run.Stderr))
		o.SetStatus(StatusBadCombinator, msg)
		return o
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(run.Stdout), &fields); err != nil {
		o.SetStatus(StatusBadCombinator,
			"Bad JSON output from template grader. Output was: "+run.Stdout)
		return o
	}

	for key := range fields {
		if !allowedGraderFields[key] {
			o.SetStatus(StatusBadCombinator,
				fmt.Sprintf("Unknown field '%s' in template grader output", key))
			return o
		}
	}

	if raw, ok := fields["showoutputonly"]; ok {
		var only bool
		if json.Unmarshal(raw, &only) == nil && only {
			fb.OutputOnly = true
			o.ActualMark = 1 // Never displayed; keeps AllCorrect well-defined.
		}
	}
	if !fb.OutputOnly {
		var fraction float64
		raw, ok := fields["fraction"]
		if !ok || json.Unmarshal(raw, &fraction) != nil || fraction < 0 || fraction > 1 {
			o.SetStatus(StatusBadCombinator,
				"Missing or invalid fraction in template grader output. Output was: "+run.Stdout)
			return o
		}
		o.ActualMark = fraction
	}

	if err := fb.applyFeedback(fields, store); err != nil {
		o.SetStatus(StatusBadCombinator, err.Error())
	}
	return o
}

func (fb *CombinatorFeedback) applyFeedback(fields map[string]json.RawMessage, store FileStore) error {
	strField := func(key string) (string, error) {
		raw, ok := fields[key]
		if !ok {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("field '%s' of template grader output must be a string", key)
		}
		return s, nil
	}

	var err error
	if fb.PrologueHTML, err = strField("prologuehtml"); err != nil {
		return err
	}
	if fb.EpilogueHTML, err = strField("epiloguehtml"); err != nil {
		return err
	}
	// Legacy graders used feedbackhtml / feedback_html for the epilogue.
	for _, alias := range []string{"feedbackhtml", "feedback_html"} {
		if fb.EpilogueHTML == "" {
			if fb.EpilogueHTML, err = strField(alias); err != nil {
				return err
			}
		}
	}
	if fb.InstructorHTML, err = strField("instructorhtml"); err != nil {
		return err
	}
	if fb.GraderState, err = strField("graderstate"); err != nil {
		return err
	}
	if raw, ok := fields["showdifferences"]; ok {
		_ = json.Unmarshal(raw, &fb.ShowDifferences)
	}

	if raw, ok := fields["testresults"]; ok {
		if err := json.Unmarshal(raw, &fb.ResultTable); err != nil {
			return fmt.Errorf("testresults in template grader output must be a table (list of lists)")
		}
	}
	if raw, ok := fields["columnformats"]; ok {
		if err := json.Unmarshal(raw, &fb.ColumnFormats); err != nil {
			return fmt.Errorf("columnformats in template grader output must be a list of strings")
		}
	}

	if raw, ok := fields["files"]; ok {
		var files map[string]string
		if err := json.Unmarshal(raw, &files); err != nil {
			return fmt.Errorf("files in template grader output must map filenames to base64 content")
		}
		if err := fb.storeFiles(files, store); err != nil {
			return err
		}
	}

	fb.PrologueHTML = fb.substituteFileURLs(fb.PrologueHTML)
	fb.EpilogueHTML = fb.substituteFileURLs(fb.EpilogueHTML)
	fb.InstructorHTML = fb.substituteFileURLs(fb.InstructorHTML)

	return fb.formatTable()
}

// storeFiles persists each grader-emitted file under this outcome's
// namespace and records its URL for later substitution into the HTML.
func (fb *CombinatorFeedback) storeFiles(files map[string]string, store FileStore) error {
	if len(files) == 0 {
		return nil
	}
	if store == nil {
		return fmt.Errorf("template grader returned files but no file store is configured")
	}
	fb.Namespace = uuid.NewString()
	fb.FileURLs = make(map[string]string, len(files))
	for name, b64 := range files {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return fmt.Errorf("file '%s' in template grader output is not valid base64", name)
		}
		url, err := store.Store(data, fb.Namespace+"_"+name)
		if err != nil {
			return fmt.Errorf("failed to store template grader file '%s': %w", name, err)
		}
		fb.FileURLs[name] = url
	}
	return nil
}

// substituteFileURLs rewrites src="name" and href="name" references to
// grader-emitted files so they point at the stored copies.
func (fb *CombinatorFeedback) substituteFileURLs(html string) string {
	for name, url := range fb.FileURLs {
		for _, attr := range []string{"src", "href"} {
			for _, q := range []string{`"`, `'`} {
				html = strings.ReplaceAll(html,
					attr+`=`+q+name+q,
					attr+`=`+q+url+q)
			}
		}
	}
	return html
}

// controlColumn reports table columns that carry row metadata rather than
// displayable content.
func controlColumn(header string) bool {
	h := strings.ToLower(header)
	return h == "iscorrect" || h == "ishidden"
}

// formatTable validates ColumnFormats against the result table and applies
// them: cells in %h columns get file-URL substitution and are wrapped as
// pre-rendered HTML.
func (fb *CombinatorFeedback) formatTable() error {
	if len(fb.ColumnFormats) == 0 || len(fb.ResultTable) == 0 {
		return nil
	}
	header := fb.ResultTable[0]
	numCols := 0
	for _, h := range header {
		if s, ok := h.(string); !ok || !controlColumn(s) {
			numCols++
		}
	}
	if len(fb.ColumnFormats) != numCols {
		return fmt.Errorf("wrong number of column formats: expected %d, got %d",
			numCols, len(fb.ColumnFormats))
	}
	for _, format := range fb.ColumnFormats {
		if format != "%s" && format != "%h" {
			return fmt.Errorf("illegal column format '%s': must be %%s or %%h", format)
		}
	}

	for i := 1; i < len(fb.ResultTable); i++ {
		row := fb.ResultTable[i]
		formatIdx := 0
		for col := 0; col < len(row) && col < len(header); col++ {
			if s, ok := header[col].(string); ok && controlColumn(s) {
				continue
			}
			if formatIdx < len(fb.ColumnFormats) && fb.ColumnFormats[formatIdx] == "%h" {
				cell := fmt.Sprintf("%v", row[col])
				row[col] = HTML(fb.substituteFileURLs(cell))
			}
			formatIdx++
		}
	}
	return nil
}

// VisibleRows filters the result table down to rows a student may see,
// honouring an optional ishidden column. The header row is always kept.
func (fb *CombinatorFeedback) VisibleRows() [][]any {
	if len(fb.ResultTable) == 0 {
		return fb.ResultTable
	}
	header := fb.ResultTable[0]
	hiddenCol := -1
	for i, h := range header {
		if s, ok := h.(string); ok && strings.ToLower(s) == "ishidden" {
			hiddenCol = i
		}
	}
	if hiddenCol == -1 {
		return fb.ResultTable
	}
	rows := [][]any{header}
	for _, row := range fb.ResultTable[1:] {
		if hiddenCol < len(row) && isTruthy(row[hiddenCol]) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// FirstFailure summarises the first failing row of the result table, if it
// has an iscorrect column. Used to build error messages for authors.
func (fb *CombinatorFeedback) FirstFailure() string {
	if len(fb.ResultTable) < 2 {
		return ""
	}
	header := fb.ResultTable[0]
	correctCol := -1
	for i, h := range header {
		if s, ok := h.(string); ok && strings.ToLower(s) == "iscorrect" {
			correctCol = i
		}
	}
	if correctCol == -1 {
		return ""
	}
	for _, row := range fb.ResultTable[1:] {
		if correctCol < len(row) && !isTruthy(row[correctCol]) {
			parts := []string{"First failing test:"}
			for i := 0; i < len(row) && i < len(header); i++ {
				if s, ok := header[i].(string); ok && !controlColumn(s) {
					parts = append(parts, fmt.Sprintf("%s: %v", s, row[i]))
				}
			}
			return strings.Join(parts, "\n")
		}
	}
	return ""
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return math.Abs(t) > 1e-9
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	case nil:
		return false
	}
	return true
}

func mergeNonEmpty(sep string, parts ...string) string {
	out := ""
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if out != "" {
			out += sep
		}
		out += p
	}
	return out
}
