// Package commit implements the append-only commit graph: immutable,
// hash-identified snapshot records linked by parent and merge-parent edges,
// plus the ancestry traversal used by log and merge.
package commit

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"grit/internal/errors"
	"grit/internal/object"
)

// Commit is one immutable record in the history graph. The empty hash ""
// denotes the virtual pre-history commit: no parents, no message, an empty
// tracked mapping. It is a sentinel, never persisted.
//
// The digest covers (parent, merge_parent, message, timestamp) only, not the
// tracked snapshot. Two snapshots created with identical parents, message, and
// timestamp therefore share a hash; kept for compatibility with the on-disk
// format.
type Commit struct {
	Hash        string                 `json:"hash"`
	Parent      string                 `json:"parent"`
	MergeParent string                 `json:"merge_parent"`
	Message     string                 `json:"message"`
	Timestamp   int64                  `json:"timestamp"`
	Tracked     map[string]object.Blob `json:"tracked"`
}

// Tracks reports whether the commit's snapshot contains path.
func (c *Commit) Tracks(path string) bool {
	_, ok := c.Tracked[path]
	return ok
}

// commits loaded repeatedly during one ancestry walk stay decoded
const cacheSize = 512

// Store persists commit records under a two-level sharded directory layout,
// the same scheme the blob store uses. Loads within one operation go through
// an LRU cache; nothing survives across process invocations.
type Store struct {
	dir    string
	cache  *lru.Cache[string, *Commit]
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for commit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(dir string, logger *zap.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating commit store directory: %w", err)
	}
	cache, err := lru.New[string, *Commit](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating commit cache: %w", err)
	}
	s := &Store{dir: dir, cache: cache, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create builds a new commit from the parent's snapshot and the staged
// changes: paths in removals are dropped, then every addition is inserted or
// replaced. Pure apart from the timestamp; nothing is persisted until Save.
func (s *Store) Create(parent, mergeParent, message string, additions map[string]object.Blob, removals map[string]bool) (*Commit, error) {
	base, err := s.Load(parent)
	if err != nil {
		return nil, fmt.Errorf("loading parent commit %s: %w", parent, err)
	}

	tracked := make(map[string]object.Blob, len(base.Tracked)+len(additions))
	for path, blob := range base.Tracked {
		if removals[path] {
			continue
		}
		tracked[path] = blob
	}
	for path, blob := range additions {
		tracked[path] = blob
	}

	timestamp := s.now().Unix()

	h := sha1.New()
	io.WriteString(h, parent)
	io.WriteString(h, mergeParent)
	io.WriteString(h, message)
	io.WriteString(h, strconv.FormatInt(timestamp, 10))

	return &Commit{
		Hash:        hex.EncodeToString(h.Sum(nil)),
		Parent:      parent,
		MergeParent: mergeParent,
		Message:     message,
		Timestamp:   timestamp,
		Tracked:     tracked,
	}, nil
}

// Load deserializes the commit with the given hash. The empty hash
// short-circuits to the virtual pre-history commit.
func (s *Store) Load(hash string) (*Commit, error) {
	if hash == "" {
		return &Commit{Tracked: map[string]object.Blob{}}, nil
	}
	if c, ok := s.cache.Get(hash); ok {
		return c, nil
	}
	if len(hash) != sha1.Size*2 {
		return nil, errors.CorruptObject(fmt.Sprintf("invalid commit hash length %d", len(hash)), nil)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, hash[:2], hash[2:]))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ObjectNotFound(hash)
		}
		return nil, fmt.Errorf("reading commit %s: %w", hash, err)
	}

	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.CorruptObject(fmt.Sprintf("malformed commit record %s", hash), err)
	}
	if c.Tracked == nil {
		c.Tracked = map[string]object.Blob{}
	}

	s.cache.Add(hash, &c)
	return &c, nil
}

// Save persists the commit record. A record with the same hash already on disk
// is a hash collision and is treated as fatal, not retried.
func (s *Store) Save(c *Commit) error {
	shard := filepath.Join(s.dir, c.Hash[:2], c.Hash[2:])
	if err := os.MkdirAll(filepath.Dir(shard), 0o755); err != nil {
		return fmt.Errorf("creating commit shard directory: %w", err)
	}

	f, err := os.OpenFile(shard, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating commit record %s: %w", c.Hash, err)
	}
	if err := json.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("encoding commit record %s: %w", c.Hash, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing commit record %s: %w", c.Hash, err)
	}

	s.cache.Add(c.Hash, c)
	s.logger.Debug("saved commit", zap.String("hash", c.Hash), zap.String("parent", c.Parent))
	return nil
}
