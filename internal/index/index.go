// Package index implements the staging area: the mutable layer of pending
// additions and removals between the working tree and the next commit.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"grit/internal/errors"
	"grit/internal/object"
	"grit/internal/safefile"
)

// Index is the single staging record of a repository. A path never appears in
// both Additions and Removals at once.
type Index struct {
	Additions map[string]object.Blob
	Removals  map[string]bool
}

func New() *Index {
	return &Index{
		Additions: make(map[string]object.Blob),
		Removals:  make(map[string]bool),
	}
}

// IsClear reports whether nothing is staged.
func (idx *Index) IsClear() bool {
	return len(idx.Additions) == 0 && len(idx.Removals) == 0
}

// StagedPaths returns the pending addition paths, sorted.
func (idx *Index) StagedPaths() []string {
	paths := make([]string, 0, len(idx.Additions))
	for path := range idx.Additions {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// RemovedPaths returns the pending removal paths, sorted.
func (idx *Index) RemovedPaths() []string {
	paths := make([]string, 0, len(idx.Removals))
	for path := range idx.Removals {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// record is the persisted form; removals serialize as a sorted list.
type record struct {
	Additions map[string]object.Blob `json:"additions"`
	Removals  []string               `json:"removals"`
}

// Tracker answers whether the current HEAD commit tracks a path. Satisfied by
// *commit.Commit.
type Tracker interface {
	Tracks(path string) bool
}

// Store persists the index record and applies staging mutations. Saves are
// atomic replaces, so a crash never leaves a torn record.
type Store struct {
	path    string
	objects *object.Store
	logger  *zap.Logger
}

func NewStore(path string, objects *object.Store, logger *zap.Logger) *Store {
	return &Store{path: path, objects: objects, logger: logger}
}

// Load reads the staging record, creating and persisting an empty one on
// first use.
func (s *Store) Load() (*Index, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			idx := New()
			if err := s.Save(idx); err != nil {
				return nil, fmt.Errorf("initializing empty index: %w", err)
			}
			return idx, nil
		}
		return nil, fmt.Errorf("reading index: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.CorruptObject("malformed index record", err)
	}

	idx := New()
	for path, blob := range rec.Additions {
		idx.Additions[path] = blob
	}
	for _, path := range rec.Removals {
		idx.Removals[path] = true
	}
	return idx, nil
}

func (s *Store) Save(idx *Index) error {
	rec := record{
		Additions: idx.Additions,
		Removals:  make([]string, 0, len(idx.Removals)),
	}
	for path := range idx.Removals {
		rec.Removals = append(rec.Removals, path)
	}
	sort.Strings(rec.Removals)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return safefile.WriteFile(s.path, data, 0o644)
}

// Clear resets the staging area to an empty record in a single atomic
// replace.
func (s *Store) Clear() error {
	return s.Save(New())
}

// Stage hashes the file at absPath, persists its blob, and records relPath as
// a pending addition. Restaging an unchanged file is a no-op beyond the
// rewrite of the same digest.
func (s *Store) Stage(idx *Index, relPath, absPath string) error {
	blob, err := s.objects.Put(absPath)
	if err != nil {
		return fmt.Errorf("staging %s: %w", relPath, err)
	}
	if err := s.objects.Write(blob, absPath); err != nil {
		return fmt.Errorf("staging %s: %w", relPath, err)
	}

	delete(idx.Removals, relPath)
	idx.Additions[relPath] = blob

	s.logger.Debug("staged file", zap.String("path", relPath), zap.String("hash", blob.Hash))
	return s.Save(idx)
}

// Unstage drops relPath from both additions and removals. Idempotent.
func (s *Store) Unstage(idx *Index, relPath string) error {
	delete(idx.Additions, relPath)
	delete(idx.Removals, relPath)
	return s.Save(idx)
}

// Remove stages relPath for deletion. With cached set the working file is
// left on disk; otherwise it is deleted, unless that would discard staged
// work.
func (s *Store) Remove(idx *Index, head Tracker, relPath, absPath string, cached bool) error {
	_, statErr := os.Stat(absPath)
	onDisk := statErr == nil
	_, staged := idx.Additions[relPath]
	tracked := head.Tracks(relPath)

	switch {
	case !onDisk:
		if !staged && !tracked {
			return errors.NotTracked(relPath)
		}
		if tracked && !idx.Removals[relPath] {
			delete(idx.Additions, relPath)
			idx.Removals[relPath] = true
			return s.Save(idx)
		}
		if staged {
			delete(idx.Additions, relPath)
			return s.Save(idx)
		}
		return errors.AlreadyStaged(relPath)

	case cached:
		if !staged && !tracked {
			return errors.NotTracked(relPath)
		}
		if staged {
			blob := idx.Additions[relPath]
			delete(idx.Additions, relPath)
			if !tracked {
				// The blob existed only for the staged addition.
				if err := s.objects.Delete(blob); err != nil {
					return fmt.Errorf("removing staged blob for %s: %w", relPath, err)
				}
			}
		}
		if tracked {
			idx.Removals[relPath] = true
		}
		return s.Save(idx)

	default:
		if staged {
			return errors.StagedChangesConflict(relPath)
		}
		if !tracked {
			return errors.NotTracked(relPath)
		}
		if err := os.Remove(absPath); err != nil {
			return fmt.Errorf("deleting %s: %w", relPath, err)
		}
		idx.Removals[relPath] = true
		return s.Save(idx)
	}
}
