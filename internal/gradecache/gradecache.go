// Package gradecache memoizes grading outcomes keyed by a fingerprint of
// everything that determines them. Identical resubmissions (common during
// bulk testing and student retries) skip the sandbox entirely. Outcomes
// are stored as zstd-compressed JSON blobs on disk so the cache survives
// restarts; an in-memory index avoids stat calls on the hot path.
package gradecache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/codegrade/marker/internal/outcome"
	"github.com/codegrade/marker/internal/question"
)

// Fingerprint identifies one grading computation: a hex sha256 over the
// question identity, the effective test cases, the submission and the run
// mode. Two jobs with the same fingerprint must grade identically.
type Fingerprint string

type fingerprintInput struct {
	QuestionID string              `json:"questionid"`
	Version    int                 `json:"version"`
	Template   string              `json:"template"`
	Grader     string              `json:"grader"`
	Language   string              `json:"language"`
	AnswerLang string              `json:"answerlang"`
	TestCases  []question.TestCase `json:"testcases"`
	Code       string              `json:"code"`
	IsPrecheck bool                `json:"isprecheck"`
}

// Compute builds the fingerprint for one job. The testcases argument is
// the effective list, after any precheck subsetting.
func Compute(q *question.Question, testcases []question.TestCase, code, answerLang string, isPrecheck bool) Fingerprint {
	data, err := json.Marshal(fingerprintInput{
		QuestionID: q.QuestionID,
		Version:    q.Version,
		Template:   q.Template,
		Grader:     q.GraderName,
		Language:   q.Language,
		AnswerLang: answerLang,
		TestCases:  testcases,
		Code:       code,
		IsPrecheck: isPrecheck,
	})
	if err != nil {
		// Only reachable with unmarshallable values in the inputs, which
		// the loader never produces.
		panic(fmt.Sprintf("failed to marshal fingerprint input: %v", err))
	}
	sum := sha256.Sum256(data)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

const blobExt = ".json.zst"

// Cache is a disk-backed outcome cache. Safe for concurrent use; identical
// concurrent misses are collapsed into one computation.
type Cache struct {
	dir    string
	logger *slog.Logger

	index *xsync.MapOf[Fingerprint, struct{}]
	group singleflight.Group

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New opens the cache at dir, creating it if needed, and indexes any blobs
// left by earlier runs.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create grade cache directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	c := &Cache{
		dir:    dir,
		logger: logger,
		index:  xsync.NewMapOf[Fingerprint, struct{}](),
		enc:    enc,
		dec:    dec,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan grade cache directory: %w", err)
	}
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), blobExt); ok {
			c.index.Store(Fingerprint(name), struct{}{})
		}
	}
	logger.Debug("grade cache opened", "dir", dir, "entries", c.index.Size())
	return c, nil
}

// GetOrCompute returns the cached outcome for fp, or runs compute and
// caches its result. Concurrent callers with the same fingerprint share
// one compute call. Ungradable outcomes (sandbox faults, broken questions)
// are returned but never cached, since they may be transient.
func (c *Cache) GetOrCompute(fp Fingerprint, compute func() *outcome.TestingOutcome) (*outcome.TestingOutcome, bool) {
	if _, ok := c.index.Load(fp); ok {
		if o, err := c.load(fp); err == nil {
			return o, true
		} else {
			// Corrupt or unreadable blob; drop it and recompute.
			c.logger.Warn("evicting unreadable grade cache entry",
				"fingerprint", string(fp), "error", err)
			c.evict(fp)
		}
	}

	v, _, shared := c.group.Do(string(fp), func() (any, error) {
		o := compute()
		if !o.IsUngradable() {
			if err := c.save(fp, o); err != nil {
				c.logger.Warn("failed to save grade cache entry",
					"fingerprint", string(fp), "error", err)
			}
		}
		return o, nil
	})
	return v.(*outcome.TestingOutcome), shared
}

// Contains reports whether fp has a cached outcome, without loading it.
func (c *Cache) Contains(fp Fingerprint) bool {
	_, ok := c.index.Load(fp)
	return ok
}

func (c *Cache) blobPath(fp Fingerprint) string {
	return filepath.Join(c.dir, string(fp)+blobExt)
}

func (c *Cache) load(fp Fingerprint) (*outcome.TestingOutcome, error) {
	blob, err := os.ReadFile(c.blobPath(fp))
	if err != nil {
		return nil, err
	}
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cache entry: %w", err)
	}
	var o outcome.TestingOutcome
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &o, nil
}

func (c *Cache) save(fp Fingerprint, o *outcome.TestingOutcome) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	blob := c.enc.EncodeAll(raw, nil)

	// Write-then-rename keeps partially written blobs out of the index.
	tmp, err := os.CreateTemp(c.dir, "blob*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), c.blobPath(fp)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	c.index.Store(fp, struct{}{})
	return nil
}

func (c *Cache) evict(fp Fingerprint) {
	c.index.Delete(fp)
	os.Remove(c.blobPath(fp))
}
