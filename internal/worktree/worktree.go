// Package worktree implements the working-tree reconciliation engine:
// classifying local modifications, applying checkouts safely, and performing
// three-way merges.
package worktree

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"grit/internal/commit"
	"grit/internal/index"
	"grit/internal/object"
)

// ModKind classifies an unstaged local change.
type ModKind int

const (
	Modified ModKind = iota
	Deleted
)

// Modification is one tracked path whose working copy diverges from its
// staged or committed version.
type Modification struct {
	Path string
	Kind ModKind
}

// Sync reads and mutates the working directory for one repository. workDir is
// the directory the operation was invoked from; empty-directory pruning stops
// there.
type Sync struct {
	root    string
	workDir string
	objects *object.Store
	commits *commit.Store
	logger  *zap.Logger
}

func NewSync(root, workDir string, objects *object.Store, commits *commit.Store, logger *zap.Logger) *Sync {
	return &Sync{
		root:    filepath.Clean(root),
		workDir: filepath.Clean(workDir),
		objects: objects,
		commits: commits,
		logger:  logger,
	}
}

// Abs maps a repo-relative slash path to its absolute working-tree location.
func (s *Sync) Abs(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// WorkingFiles returns the repo-relative slash paths of every non-hidden file
// in the working tree, sorted. Dot-prefixed entries are skipped, which also
// excludes the repository's own metadata directory.
func (s *Sync) WorkingFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking working tree: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// UnstagedModifications classifies every path tracked by head, and every
// staged addition, against the working tree. A tracked path missing from disk
// and not staged for removal is deleted; a path whose content hash differs
// from its staged version (or, unstaged, from its committed version) is
// modified.
func (s *Sync) UnstagedModifications(head *commit.Commit, idx *index.Index) ([]Modification, error) {
	working, err := s.WorkingFiles()
	if err != nil {
		return nil, err
	}
	onDisk := make(map[string]bool, len(working))
	for _, path := range working {
		onDisk[path] = true
	}

	var mods []Modification

	for path, blob := range head.Tracked {
		if !onDisk[path] {
			if !idx.Removals[path] {
				mods = append(mods, Modification{Path: path, Kind: Deleted})
			}
			continue
		}
		expect := blob
		if staged, ok := idx.Additions[path]; ok {
			expect = staged
		}
		same, err := s.objects.ContentEquals(expect, s.Abs(path))
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", path, err)
		}
		if !same {
			mods = append(mods, Modification{Path: path, Kind: Modified})
		}
	}

	// Staged additions not yet tracked: catch post-staging edits and deletes.
	for path, staged := range idx.Additions {
		if head.Tracks(path) {
			continue
		}
		if !onDisk[path] {
			mods = append(mods, Modification{Path: path, Kind: Deleted})
			continue
		}
		same, err := s.objects.ContentEquals(staged, s.Abs(path))
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", path, err)
		}
		if !same {
			mods = append(mods, Modification{Path: path, Kind: Modified})
		}
	}

	sort.Slice(mods, func(i, j int) bool { return mods[i].Path < mods[j].Path })
	return mods, nil
}

// Untracked returns working files neither tracked by head nor staged for
// addition.
func (s *Sync) Untracked(head *commit.Commit, idx *index.Index) ([]string, error) {
	working, err := s.WorkingFiles()
	if err != nil {
		return nil, err
	}
	var untracked []string
	for _, path := range working {
		if head.Tracks(path) {
			continue
		}
		if _, ok := idx.Additions[path]; ok {
			continue
		}
		untracked = append(untracked, path)
	}
	return untracked, nil
}
