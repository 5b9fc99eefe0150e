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
	"grit/internal/object"
	"grit/internal/refs"
)

// MergeKind is the outcome class of a merge.
type MergeKind int

const (
	// MergeCommitted: histories had diverged and a merge commit was created.
	MergeCommitted MergeKind = iota
	// MergeFastForward: the current branch ref moved to the target tip.
	MergeFastForward
	// MergeUpToDate: the target's work is already contained in HEAD.
	MergeUpToDate
	// MergeConflicted: conflict markers were written; the result is staged
	// but uncommitted. This is a reported outcome, not an error.
	MergeConflicted
)

// MergeResult reports what a merge did.
type MergeResult struct {
	Kind      MergeKind
	Branch    string // merged branch
	Into      string // current branch
	Commit    string // new commit hash, or the target tip on fast-forward
	Conflicts []string
}

// Merger runs three-way merges over the commit graph.
type Merger struct {
	sync    *Sync
	objects *object.Store
	commits *commit.Store
	refs    *refs.Store
	index   *index.Store
	logger  *zap.Logger
}

func NewMerger(sync *Sync, objects *object.Store, commits *commit.Store, refStore *refs.Store, indexStore *index.Store, logger *zap.Logger) *Merger {
	return &Merger{
		sync:    sync,
		objects: objects,
		commits: commits,
		refs:    refStore,
		index:   indexStore,
		logger:  logger,
	}
}

// Merge merges the named branch into the current one. Preconditions, checked
// in order: the branch exists, differs from the current branch, the working
// tree has no unstaged modifications, and the index is clear. Per-file
// conflicts do not abort the merge; each conflicted path gets marker text and
// the result is left staged.
func (m *Merger) Merge(branch string) (*MergeResult, error) {
	current, err := m.refs.Head()
	if err != nil {
		return nil, err
	}
	if !m.refs.Exists(branch) {
		return nil, errors.BranchNotFound(branch)
	}
	if branch == current {
		return nil, errors.SelfMerge(branch)
	}

	headHash, err := m.refs.Resolve(current)
	if err != nil {
		return nil, err
	}
	targetHash, err := m.refs.Resolve(branch)
	if err != nil {
		return nil, err
	}

	head, err := m.commits.Load(headHash)
	if err != nil {
		return nil, err
	}
	idx, err := m.index.Load()
	if err != nil {
		return nil, err
	}

	mods, err := m.sync.UnstagedModifications(head, idx)
	if err != nil {
		return nil, err
	}
	if len(mods) > 0 {
		return nil, errors.UnstagedChanges()
	}
	if !idx.IsClear() {
		return nil, errors.UncommittedChanges()
	}

	contained, err := m.commits.IsAncestor(targetHash, headHash)
	if err != nil {
		return nil, err
	}
	if contained {
		return &MergeResult{Kind: MergeUpToDate, Branch: branch, Into: current}, nil
	}

	behind, err := m.commits.IsAncestor(headHash, targetHash)
	if err != nil {
		return nil, err
	}
	if behind {
		target, err := m.commits.Load(targetHash)
		if err != nil {
			return nil, err
		}
		if err := m.sync.Checkout(head, target, idx); err != nil {
			return nil, err
		}
		if err := m.refs.Set(current, targetHash); err != nil {
			return nil, err
		}
		m.logger.Info("fast-forward merge",
			zap.String("branch", branch),
			zap.String("into", current),
			zap.String("tip", targetHash))
		return &MergeResult{Kind: MergeFastForward, Branch: branch, Into: current, Commit: targetHash}, nil
	}

	base, err := m.commits.MergeBase(headHash, targetHash)
	if err != nil {
		return nil, err
	}
	target, err := m.commits.Load(targetHash)
	if err != nil {
		return nil, err
	}

	conflicts, err := m.applyThreeWay(head, target, base, targetHash, idx)
	if err != nil {
		return nil, err
	}

	if len(conflicts) > 0 {
		// Leave the partial result staged for inspection.
		if err := m.index.Save(idx); err != nil {
			return nil, err
		}
		m.logger.Warn("merge produced conflicts",
			zap.String("branch", branch),
			zap.Strings("paths", conflicts))
		return &MergeResult{Kind: MergeConflicted, Branch: branch, Into: current, Conflicts: conflicts}, nil
	}

	message := fmt.Sprintf("Merged %s into %s", branch, current)
	merged, err := m.commits.Create(headHash, targetHash, message, idx.Additions, idx.Removals)
	if err != nil {
		return nil, err
	}
	if err := m.commits.Save(merged); err != nil {
		return nil, err
	}
	if err := m.refs.Set(current, merged.Hash); err != nil {
		return nil, err
	}
	if err := m.index.Clear(); err != nil {
		return nil, err
	}

	m.logger.Info("created merge commit",
		zap.String("hash", merged.Hash),
		zap.String("branch", branch),
		zap.String("into", current))
	return &MergeResult{Kind: MergeCommitted, Branch: branch, Into: current, Commit: merged.Hash}, nil
}

// applyThreeWay resolves every path tracked by head, target, or their common
// ancestor, mutating the working tree and accumulating staged changes in idx.
// It returns the paths that received conflict markers.
func (m *Merger) applyThreeWay(head, target, base *commit.Commit, targetHash string, idx *index.Index) ([]string, error) {
	paths := make(map[string]bool)
	for path := range head.Tracked {
		paths[path] = true
	}
	for path := range target.Tracked {
		paths[path] = true
	}
	for path := range base.Tracked {
		paths[path] = true
	}
	ordered := make([]string, 0, len(paths))
	for path := range paths {
		ordered = append(ordered, path)
	}
	sort.Strings(ordered)

	var conflicts []string
	for _, path := range ordered {
		headBlob, inHead := head.Tracked[path]
		targetBlob, inTarget := target.Tracked[path]
		baseBlob, inBase := base.Tracked[path]

		headChanged := digest(headBlob, inHead) != digest(baseBlob, inBase)
		targetChanged := digest(targetBlob, inTarget) != digest(baseBlob, inBase)

		switch {
		case !targetChanged:
			// Unchanged on the target side: head's version (possibly the
			// ancestor's) already sits in the working tree.

		case !headChanged:
			if err := m.takeTargetSide(path, targetBlob, inTarget, idx); err != nil {
				return nil, err
			}

		case digest(headBlob, inHead) == digest(targetBlob, inTarget):
			// Both sides made the same change, deletion included.

		default:
			if err := m.writeConflict(path, headBlob, inHead, targetBlob, inTarget, targetHash, idx); err != nil {
				return nil, err
			}
			conflicts = append(conflicts, path)
		}
	}
	return conflicts, nil
}

func (m *Merger) takeTargetSide(path string, blob object.Blob, present bool, idx *index.Index) error {
	abs := m.sync.Abs(path)
	if !present {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
		m.sync.pruneEmptyDirs(filepath.Dir(abs))
		delete(idx.Additions, path)
		idx.Removals[path] = true
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := m.objects.Read(blob, abs); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	delete(idx.Removals, path)
	idx.Additions[path] = blob
	return nil
}

// writeConflict replaces the working file with both versions wrapped in
// conflict markers, then stages the marked-up file.
func (m *Merger) writeConflict(path string, headBlob object.Blob, inHead bool, targetBlob object.Blob, inTarget bool, targetHash string, idx *index.Index) error {
	headContent, err := m.sideContents(headBlob, inHead)
	if err != nil {
		return err
	}
	targetContent, err := m.sideContents(targetBlob, inTarget)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("<<<<<<< HEAD\n%s\n=======\n%s\n>>>>>>> %s\n", headContent, targetContent, targetHash)

	abs := m.sync.Abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing conflict markers to %s: %w", path, err)
	}

	blob, err := m.objects.Put(abs)
	if err != nil {
		return err
	}
	if err := m.objects.Write(blob, abs); err != nil {
		return err
	}
	delete(idx.Removals, path)
	idx.Additions[path] = blob
	return nil
}

func (m *Merger) sideContents(blob object.Blob, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return m.objects.Contents(blob)
}

func digest(blob object.Blob, present bool) string {
	if !present {
		return ""
	}
	return blob.Hash
}
