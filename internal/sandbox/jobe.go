package sandbox

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// JobeConfig configures a jobe sandbox client. Server is one or more
// jobe hosts separated by semicolons; with more than one host the client
// routes all calls of one run to the same host (hash of the per-run job id)
// so that a file upload and the subsequent run hit the same instance.
type JobeConfig struct {
	Server  string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

const defaultJobeTimeout = 30 * time.Second

// Jobe runs code on one or more jobe servers
// (https://github.com/trampgeek/jobe). Safe for concurrent use.
type Jobe struct {
	servers []string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	languages mapset.Set[string] // nil until fetched
	closed    bool
}

func NewJobe(cfg JobeConfig) *Jobe {
	servers := []string{}
	for _, s := range strings.Split(cfg.Server, ";") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultJobeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Jobe{
		servers: servers,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type runSpec struct {
	LanguageID     string         `json:"language_id"`
	SourceCode     string         `json:"sourcecode"`
	SourceFilename string         `json:"sourcefilename"`
	Input          string         `json:"input"`
	FileList       [][2]string    `json:"file_list"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

type runResponse struct {
	Outcome int    `json:"outcome"`
	CmpInfo string `json:"cmpinfo"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Execute implements the Sandbox contract against a jobe server.
func (j *Jobe) Execute(ctx context.Context, sourceText, language, stdin string, files map[string][]byte, params *Params) *RunResult {
	language = strings.ToLower(language)
	if stdin != "" && !strings.HasSuffix(stdin, "\n") {
		stdin += "\n" // Jobe requires newline-terminated input.
	}

	if langs := j.supportedLanguages(ctx); langs != nil && !langs.Contains(language) {
		return &RunResult{Error: ErrUnsupportedLanguage, ErrorInfo: language}
	}

	fileList := make([][2]string, 0, len(files))
	for name, contents := range files {
		fileList = append(fileList, [2]string{contentID(contents), name})
	}

	spec := runSpec{
		LanguageID:     language,
		SourceCode:     sourceText,
		SourceFilename: sourceFilename(sourceText, language),
		Input:          stdin,
		FileList:       fileList,
	}
	if params != nil {
		spec.Parameters = map[string]any{}
		for k, v := range params.Extra {
			spec.Parameters[k] = v
		}
		if params.CPUTimeSecs > 0 {
			spec.Parameters["cputime"] = params.CPUTimeSecs
		}
		if params.MemoryLimitMB > 0 {
			spec.Parameters["memorylimit"] = params.MemoryLimitMB
		}
		if params.SourceFilename != "" {
			spec.SourceFilename = params.SourceFilename
		}
	}

	// All requests for this run share a job id so a multi-server setup
	// routes the file uploads and the retried run to one instance.
	jobID := uuid.NewString()

	body := map[string]any{"run_spec": spec}
	status, respBody, err := j.request(ctx, jobID, http.MethodPost, "runs", body)
	if err != nil {
		return &RunResult{Error: ErrUnknownServer, ErrorInfo: err.Error()}
	}

	if status == http.StatusNotFound {
		// Missing file on the server: upload everything once, then retry.
		for _, contents := range files {
			if status = j.putFile(ctx, jobID, contents); status != http.StatusNoContent {
				break
			}
		}
		if status == http.StatusNoContent {
			status, respBody, err = j.request(ctx, jobID, http.MethodPost, "runs", body)
			if err != nil {
				return &RunResult{Error: ErrUnknownServer, ErrorInfo: err.Error()}
			}
		}
	}

	var resp runResponse
	if status != http.StatusOK || json.Unmarshal(respBody, &resp) != nil {
		kind := errorKindForStatus(status)
		if status == http.StatusOK {
			kind = ErrUnknownServer
		}
		return &RunResult{Error: kind, ErrorInfo: strings.TrimSpace(string(respBody))}
	}
	if ResultKind(resp.Outcome) == ResultServerOverload {
		return &RunResult{Error: ErrServerOverload}
	}

	result := ResultKind(resp.Outcome)
	stderr := filterFilePaths(resp.Stderr)
	if strings.TrimSpace(stderr) != "" && result == ResultSuccess {
		// A well-behaved program under test never writes to stderr.
		result = ResultRuntimeError
	}
	return &RunResult{
		Error:       ErrOK,
		Result:      result,
		Stdout:      filterFilePaths(resp.Stdout),
		Stderr:      stderr,
		CompileInfo: resp.CmpInfo,
	}
}

// Languages fetches and caches the language identifiers supported by the
// jobe server. The cached set is also consulted by Execute to fail fast on
// unsupported languages.
func (j *Jobe) Languages(ctx context.Context) ([]string, error) {
	if set := j.cachedLanguages(); set != nil {
		return set.ToSlice(), nil
	}
	status, body, err := j.request(ctx, uuid.NewString(), http.MethodGet, "languages", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch languages: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch languages: %s", errorKindForStatus(status))
	}
	var pairs [][]string // [language, version] pairs
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("failed to parse languages response: %w", err)
	}
	set := mapset.NewSet[string]()
	for _, pair := range pairs {
		if len(pair) > 0 {
			set.Add(strings.ToLower(pair[0]))
		}
	}
	j.mu.Lock()
	j.languages = set
	j.mu.Unlock()
	return set.ToSlice(), nil
}

func (j *Jobe) cachedLanguages() mapset.Set[string] {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.languages
}

// supportedLanguages returns the language set, fetching it on first use.
// A failed fetch yields nil and the server vets the language itself.
func (j *Jobe) supportedLanguages(ctx context.Context) mapset.Set[string] {
	if set := j.cachedLanguages(); set != nil {
		return set
	}
	if _, err := j.Languages(ctx); err != nil {
		j.logger.Warn("failed to fetch sandbox languages", "error", err)
		return nil
	}
	return j.cachedLanguages()
}

// Close drops the cached language set. Safe to call more than once.
func (j *Jobe) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	j.languages = nil
	j.mu.Unlock()
	j.client.CloseIdleConnections()
}

func (j *Jobe) putFile(ctx context.Context, jobID string, contents []byte) int {
	body := map[string]any{"file_contents": base64.StdEncoding.EncodeToString(contents)}
	status, _, err := j.request(ctx, jobID, http.MethodPut, "files/"+contentID(contents), body)
	if err != nil {
		return -1
	}
	return status
}

func (j *Jobe) request(ctx context.Context, jobID, method, resource string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	url := j.serverFor(jobID) + "/" + resource
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if j.apiKey != "" {
		req.Header.Set("X-API-KEY", j.apiKey)
	}
	req.Header.Set("X-CodeRunner-Job-Id", jobID)

	resp, err := j.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// serverFor picks a jobe base URL for the given job id. The same id always
// maps to the same server.
func (j *Jobe) serverFor(jobID string) string {
	server := j.servers[0]
	if len(j.servers) > 1 {
		h := fnv.New32a()
		h.Write([]byte(jobID))
		server = j.servers[int(h.Sum32())%len(j.servers)]
	}
	if !strings.HasPrefix(server, "http") {
		server = "http://" + server
	}
	return server + "/jobe/index.php/restapi"
}

func errorKindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return ErrOK
	case http.StatusBadRequest:
		return ErrBadParameter
	case http.StatusUnauthorized:
		return ErrRateLimited
	case http.StatusForbidden:
		return ErrAuth
	}
	return ErrUnknownServer
}

func contentID(contents []byte) string {
	return fmt.Sprintf("%x", md5.Sum(contents))
}

var jobePathRe = regexp.MustCompile(`(/home/jobe/runs/jobe_[a-zA-Z0-9_]+/)([a-zA-Z0-9_]+)`)

// filterFilePaths strips jobe working-directory prefixes from output so the
// result is portable across jobe instances.
func filterFilePaths(s string) string {
	return jobePathRe.ReplaceAllString(s, "$2")
}

var javaMainRe = regexp.MustCompile(
	`(?ms)(^|\W)public\s+class\s+(\w+)[^{]*\{.*?((public\s([a-z]*\s)*static)|(static\s([a-z]*\s)*public))\s([a-z]*\s)*void\s+main\s*\(\s*String`)

// sourceFilename picks a source file name for the run. Java needs the file
// named after its main class; a regex match is best effort only.
func sourceFilename(sourceText, language string) string {
	if language == "java" {
		if m := javaMainRe.FindStringSubmatch(sourceText); m != nil {
			return m[2] + ".java"
		}
		return "prog.java"
	}
	return "__tester__." + language
}
