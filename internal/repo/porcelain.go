package repo

import (
	"os"

	"go.uber.org/zap"

	"grit/internal/commit"
	"grit/internal/errors"
	"grit/internal/worktree"
)

// Add stages the file at path for inclusion in the next commit.
func (r *Repo) Add(path string) error {
	rel, err := r.RelPath(path)
	if err != nil {
		return err
	}
	abs := r.Abs(rel)
	if _, err := os.Stat(abs); err != nil {
		return errors.FileNotFound(path)
	}

	idx, err := r.Index.Load()
	if err != nil {
		return err
	}
	return r.Index.Stage(idx, rel, abs)
}

// Rm stages the file at path for removal. With cached set the working copy
// is left in place.
func (r *Repo) Rm(path string, cached bool) error {
	rel, err := r.RelPath(path)
	if err != nil {
		return err
	}

	_, _, tip, err := r.Head()
	if err != nil {
		return err
	}
	idx, err := r.Index.Load()
	if err != nil {
		return err
	}
	return r.Index.Remove(idx, tip, rel, r.Abs(rel), cached)
}

// Unstage drops any pending addition or removal for path.
func (r *Repo) Unstage(path string) error {
	rel, err := r.RelPath(path)
	if err != nil {
		return err
	}
	idx, err := r.Index.Load()
	if err != nil {
		return err
	}
	return r.Index.Unstage(idx, rel)
}

// Commit records the staged changes as a new commit on the current branch
// and clears the index.
func (r *Repo) Commit(message string) (*commit.Commit, error) {
	idx, err := r.Index.Load()
	if err != nil {
		return nil, err
	}
	if idx.IsClear() {
		return nil, errors.NothingToCommit()
	}

	branch, hash, _, err := r.Head()
	if err != nil {
		return nil, err
	}

	c, err := r.Commits.Create(hash, "", message, idx.Additions, idx.Removals)
	if err != nil {
		return nil, err
	}
	if err := r.Commits.Save(c); err != nil {
		return nil, err
	}
	if err := r.Refs.Set(branch, c.Hash); err != nil {
		return nil, err
	}
	if err := r.Index.Clear(); err != nil {
		return nil, err
	}

	r.Logger.Info("created commit",
		zap.String("hash", c.Hash),
		zap.String("branch", branch))
	return c, nil
}

// Status describes the repository state as reported by the status command.
type Status struct {
	Branch    string
	Staged    []string
	Removed   []string
	Unstaged  []worktree.Modification
	Untracked []string
}

// Status gathers the current branch, staged and removed paths, unstaged
// working-tree modifications, and untracked files.
func (r *Repo) Status() (*Status, error) {
	branch, _, tip, err := r.Head()
	if err != nil {
		return nil, err
	}
	idx, err := r.Index.Load()
	if err != nil {
		return nil, err
	}

	mods, err := r.Tree.UnstagedModifications(tip, idx)
	if err != nil {
		return nil, err
	}
	untracked, err := r.Tree.Untracked(tip, idx)
	if err != nil {
		return nil, err
	}

	return &Status{
		Branch:    branch,
		Staged:    idx.StagedPaths(),
		Removed:   idx.RemovedPaths(),
		Unstaged:  mods,
		Untracked: untracked,
	}, nil
}

// Log walks the commit history from the current branch tip, most recent
// first, invoking fn for each commit until history is exhausted or fn
// returns false.
func (r *Repo) Log(fn func(*commit.Commit) bool) error {
	_, hash, _, err := r.Head()
	if err != nil {
		return err
	}
	it := r.Commits.Iterate(hash)
	for {
		c, ok := it.Next()
		if !ok {
			return it.Err()
		}
		if !fn(c) {
			return nil
		}
	}
}

// Branches lists all branch names alongside the current one.
func (r *Repo) Branches() (current string, all []string, err error) {
	current, err = r.Refs.Head()
	if err != nil {
		return "", nil, err
	}
	all, err = r.Refs.List()
	if err != nil {
		return "", nil, err
	}
	return current, all, nil
}

// CreateBranch creates a branch pointing at the current HEAD commit.
func (r *Repo) CreateBranch(name string) error {
	_, hash, _, err := r.Head()
	if err != nil {
		return err
	}
	return r.Refs.Create(name, hash)
}

// DeleteBranch removes a branch ref. The checked-out branch cannot be
// deleted.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.Refs.Head()
	if err != nil {
		return err
	}
	if name == current {
		return errors.BranchCheckedOut(name)
	}
	return r.Refs.Delete(name)
}

// Switch checks out the named branch, creating it first when create is set.
// Switching to the current branch reports KindAlreadyOnBranch and leaves the
// working tree untouched.
func (r *Repo) Switch(name string, create bool) error {
	current, hash, tip, err := r.Head()
	if err != nil {
		return err
	}
	if name == current {
		return errors.AlreadyOnBranch(name)
	}

	if create {
		if err := r.Refs.Create(name, hash); err != nil {
			return err
		}
	}

	dstHash, err := r.Refs.Resolve(name)
	if err != nil {
		return err
	}
	dst, err := r.Commits.Load(dstHash)
	if err != nil {
		return err
	}
	idx, err := r.Index.Load()
	if err != nil {
		return err
	}

	if err := r.Tree.Checkout(tip, dst, idx); err != nil {
		return err
	}
	if err := r.Refs.SetHead(name); err != nil {
		return err
	}

	r.Logger.Info("switched branch",
		zap.String("from", current),
		zap.String("to", name))
	return nil
}

// Merge merges the named branch into the current one.
func (r *Repo) Merge(branch string) (*worktree.MergeResult, error) {
	m := worktree.NewMerger(r.Tree, r.Objects, r.Commits, r.Refs, r.Index, r.Logger)
	return m.Merge(branch)
}
