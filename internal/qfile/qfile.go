// Package qfile loads question definitions from TOML files. The CLI and
// the bulk tester both feed on these; a deployment embedded in an LMS
// would construct question.Question values from its own store instead.
package qfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/codegrade/marker/internal/grade"
	"github.com/codegrade/marker/internal/question"
	"github.com/codegrade/marker/internal/sandbox"
)

// specFile maps the TOML question file layout.
type specFile struct {
	QuestionID      string `toml:"questionid"`
	Version         int    `toml:"version"`
	Name            string `toml:"name"`
	Template        string `toml:"template"`
	IsCombinator    bool   `toml:"iscombinator"`
	AllowMultiStdin bool   `toml:"allowmultistdin"`
	Grader          string `toml:"grader"`
	Language        string `toml:"language"`
	TestSplitter    string `toml:"testsplitter"`
	ShowSource      bool   `toml:"showsource"`

	// Answer is the author's reference solution, exercised by the bulk
	// tester and expected to earn full marks.
	Answer string `toml:"answer"`

	Params       *specParams         `toml:"params"`
	TestCases    []question.TestCase `toml:"testcases"`
	SupportFiles []specSupportFile   `toml:"supportfiles"`
}

type specParams struct {
	CPUTimeSecs    int    `toml:"cputimesecs"`
	MemoryLimitMB  int    `toml:"memorylimitmb"`
	SourceFilename string `toml:"sourcefilename"`
}

// specSupportFile carries a support file either inline or by path relative
// to the question file.
type specSupportFile struct {
	Name    string `toml:"name"`
	Path    string `toml:"path"`
	Content string `toml:"content"`
}

// Spec is one loaded question file.
type Spec struct {
	Question *question.Question
	Answer   string

	// Path is where the spec was loaded from, for error reporting.
	Path string
}

// Load reads and validates one question file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read question file: %w", err)
	}
	var sf specFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse question file %s: %w", path, err)
	}

	if sf.Template == "" {
		return nil, fmt.Errorf("question file %s has no template", path)
	}
	if sf.Language == "" {
		return nil, fmt.Errorf("question file %s names no language", path)
	}
	if len(sf.TestCases) == 0 {
		return nil, fmt.Errorf("question file %s has no test cases", path)
	}
	if _, err := grade.New(sf.Grader); err != nil {
		return nil, fmt.Errorf("question file %s: %w", path, err)
	}
	for i := range sf.TestCases {
		tc := &sf.TestCases[i]
		switch tc.Display {
		case "", question.DisplayShow:
			tc.Display = question.DisplayShow
		case question.DisplayHide, question.DisplayHideIfFail, question.DisplayHideIfSucceed:
		default:
			return nil, fmt.Errorf("question file %s: test %d has unknown display mode %q", path, i, tc.Display)
		}
		if tc.Ordering == 0 {
			tc.Ordering = i
		}
	}

	q := &question.Question{
		QuestionID:      sf.QuestionID,
		Version:         sf.Version,
		Name:            sf.Name,
		Template:        sf.Template,
		IsCombinator:    sf.IsCombinator,
		AllowMultiStdin: sf.AllowMultiStdin,
		GraderName:      sf.Grader,
		Language:        sf.Language,
		TestCases:       sf.TestCases,
		TestSplitter:    sf.TestSplitter,
		ShowSource:      sf.ShowSource,
	}
	if q.QuestionID == "" {
		q.QuestionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if q.Name == "" {
		q.Name = q.QuestionID
	}
	if _, err := q.SplitterRe(); err != nil {
		return nil, fmt.Errorf("question file %s: %w", path, err)
	}
	if sf.Params != nil {
		q.SandboxParams = &sandbox.Params{
			CPUTimeSecs:    sf.Params.CPUTimeSecs,
			MemoryLimitMB:  sf.Params.MemoryLimitMB,
			SourceFilename: sf.Params.SourceFilename,
		}
	}

	if len(sf.SupportFiles) > 0 {
		q.SupportFiles = make(map[string][]byte, len(sf.SupportFiles))
		for _, f := range sf.SupportFiles {
			name := f.Name
			if name == "" {
				name = filepath.Base(f.Path)
			}
			if name == "" || name == "." {
				return nil, fmt.Errorf("question file %s: support file with no name", path)
			}
			content := []byte(f.Content)
			if f.Path != "" {
				content, err = os.ReadFile(filepath.Join(filepath.Dir(path), f.Path))
				if err != nil {
					return nil, fmt.Errorf("question file %s: failed to read support file: %w", path, err)
				}
			}
			q.SupportFiles[name] = content
		}
	}

	return &Spec{Question: q, Answer: sf.Answer, Path: path}, nil
}

// LoadDir loads every .toml question file directly under dir, sorted by
// file name.
func LoadDir(dir string) ([]*Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read question directory: %w", err)
	}
	var specs []*Spec
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		spec, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Path < specs[j].Path })
	return specs, nil
}
