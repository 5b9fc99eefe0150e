package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"grit/internal/commit"
	"grit/internal/errors"
	"grit/internal/index"
)

// Checkout transitions the working tree from the snapshot implied by
// (src, idx) to dst's snapshot. Conflict detection fully precedes mutation:
// if any locally touched path is tracked with different digests by both
// commits, the call fails with the full conflict list and the tree untouched.
func (s *Sync) Checkout(src, dst *commit.Commit, idx *index.Index) error {
	mods, err := s.UnstagedModifications(src, idx)
	if err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, m := range mods {
		touched[m.Path] = true
	}
	for path := range idx.Additions {
		touched[path] = true
	}
	for path := range idx.Removals {
		touched[path] = true
	}

	// A touched path is a conflict only when both commits track it with
	// different content; otherwise local state simply wins at that path.
	var conflicts []string
	protected := make(map[string]bool, len(touched))
	for path := range touched {
		srcBlob, inSrc := src.Tracked[path]
		dstBlob, inDst := dst.Tracked[path]
		if inSrc && inDst && srcBlob.Hash != dstBlob.Hash {
			conflicts = append(conflicts, path)
			continue
		}
		protected[path] = true
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return errors.CheckoutConflict(conflicts)
	}

	// Delete paths tracked by src, absent from dst, and not locally touched.
	for path := range src.Tracked {
		if protected[path] {
			continue
		}
		if _, ok := dst.Tracked[path]; ok {
			continue
		}
		abs := s.Abs(path)
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
		s.logger.Debug("checkout removed file", zap.String("path", path))
		s.pruneEmptyDirs(filepath.Dir(abs))
	}

	// Restore dst content that differs from src's version, or is new.
	for path, dstBlob := range dst.Tracked {
		if protected[path] {
			continue
		}
		if srcBlob, ok := src.Tracked[path]; ok && srcBlob.Hash == dstBlob.Hash {
			continue
		}
		abs := s.Abs(path)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
		if err := s.objects.Read(dstBlob, abs); err != nil {
			return fmt.Errorf("restoring %s: %w", path, err)
		}
		s.logger.Debug("checkout restored file", zap.String("path", path), zap.String("hash", dstBlob.Hash))
	}

	return nil
}

// pruneEmptyDirs removes directories left empty by a deletion, walking upward
// until the repository root, the directory the operation was invoked from, or
// the first non-empty directory.
func (s *Sync) pruneEmptyDirs(dir string) {
	for {
		dir = filepath.Clean(dir)
		if dir == s.root || dir == s.workDir || dir == string(filepath.Separator) || dir == "." {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
