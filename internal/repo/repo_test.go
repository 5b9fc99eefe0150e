package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grit/internal/commit"
	"grit/internal/errors"
	"grit/internal/worktree"
)

func initRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, Init(dir, zap.NewNop()))
	r, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	return r
}

func (r *Repo) write(t *testing.T, relPath, content string) {
	t.Helper()
	abs := r.Abs(relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, zap.NewNop()))

	for _, sub := range []string{"blobs", "commits", "refs"} {
		info, err := os.Stat(filepath.Join(dir, MarkerDir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	head, err := os.ReadFile(filepath.Join(dir, MarkerDir, "HEAD"))
	require.NoError(t, err)
	assert.Equal(t, "main", string(head))

	ref, err := os.ReadFile(filepath.Join(dir, MarkerDir, "refs", "main"))
	require.NoError(t, err)
	assert.Empty(t, ref)

	err = Init(dir, zap.NewNop())
	assert.True(t, errors.IsKind(err, errors.KindRepositoryExists))
}

func TestFindRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir, zap.NewNop()))
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Run("from the root itself", func(t *testing.T) {
		got, err := FindRoot(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("from a nested directory", func(t *testing.T) {
		got, err := FindRoot(nested)
		require.NoError(t, err)
		assert.Equal(t, dir, got)
	})

	t.Run("outside any repository", func(t *testing.T) {
		_, err := FindRoot(t.TempDir())
		assert.True(t, errors.IsKind(err, errors.KindNotARepository))
	})
}

func TestRelPath(t *testing.T) {
	r := initRepo(t)

	rel, err := r.RelPath(filepath.Join(r.Root, "dir", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dir/file.txt", rel)

	_, err = r.RelPath(filepath.Join(r.Root, "..", "outside.txt"))
	require.Error(t, err)

	// A name that merely starts with dots is still inside the repository.
	rel, err = r.RelPath(filepath.Join(r.Root, "..foo"))
	require.NoError(t, err)
	assert.Equal(t, "..foo", rel)
}

func TestAddCommitLog(t *testing.T) {
	r := initRepo(t)

	t.Run("add missing file", func(t *testing.T) {
		err := r.Add("ghost.txt")
		assert.True(t, errors.IsKind(err, errors.KindFileNotFound))
	})

	t.Run("commit with empty index", func(t *testing.T) {
		_, err := r.Commit("nothing")
		assert.True(t, errors.IsKind(err, errors.KindNothingToCommit))
	})

	r.write(t, "a.txt", "first")
	require.NoError(t, r.Add("a.txt"))

	first, err := r.Commit("first commit")
	require.NoError(t, err)
	assert.True(t, first.Tracks("a.txt"))

	r.write(t, "a.txt", "second")
	r.write(t, "b.txt", "new")
	require.NoError(t, r.Add("a.txt"))
	require.NoError(t, r.Add("b.txt"))

	second, err := r.Commit("second commit")
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Parent)

	var messages []string
	require.NoError(t, r.Log(func(c *commit.Commit) bool {
		messages = append(messages, c.Message)
		return true
	}))
	assert.Equal(t, []string{"second commit", "first commit"}, messages)

	// The index is clear after each commit.
	idx, err := r.Index.Load()
	require.NoError(t, err)
	assert.True(t, idx.IsClear())
}

func TestStatusSections(t *testing.T) {
	r := initRepo(t)

	r.write(t, "committed.txt", "v1")
	require.NoError(t, r.Add("committed.txt"))
	_, err := r.Commit("base")
	require.NoError(t, err)

	r.write(t, "staged.txt", "staged")
	require.NoError(t, r.Add("staged.txt"))

	r.write(t, "committed.txt", "v2") // unstaged edit
	r.write(t, "stray.txt", "stray")  // untracked

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, []string{"staged.txt"}, st.Staged)
	assert.Empty(t, st.Removed)
	require.Len(t, st.Unstaged, 1)
	assert.Equal(t, "committed.txt", st.Unstaged[0].Path)
	assert.Equal(t, []string{"stray.txt"}, st.Untracked)
}

func TestStatusStagedFileDeletedFromDisk(t *testing.T) {
	r := initRepo(t)

	r.write(t, "a.txt", "hello")
	require.NoError(t, r.Add("a.txt"))
	require.NoError(t, os.Remove(r.Abs("a.txt")))

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Unstaged, 1)
	assert.Equal(t, "a.txt", st.Unstaged[0].Path)
	assert.Equal(t, worktree.Deleted, st.Unstaged[0].Kind)
}

func TestRmAndUnstage(t *testing.T) {
	r := initRepo(t)

	r.write(t, "a.txt", "tracked")
	require.NoError(t, r.Add("a.txt"))
	_, err := r.Commit("base")
	require.NoError(t, err)

	t.Run("rm deletes and stages the removal", func(t *testing.T) {
		require.NoError(t, r.Rm("a.txt", false))

		_, statErr := os.Stat(r.Abs("a.txt"))
		assert.True(t, os.IsNotExist(statErr))

		st, err := r.Status()
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, st.Removed)
	})

	t.Run("unstage drops the pending removal", func(t *testing.T) {
		require.NoError(t, r.Unstage("a.txt"))

		st, err := r.Status()
		require.NoError(t, err)
		assert.Empty(t, st.Removed)
		// The working copy stays deleted; it now shows as an unstaged
		// deletion instead.
		require.Len(t, st.Unstaged, 1)
		assert.Equal(t, "a.txt", st.Unstaged[0].Path)
	})
}

func TestBranches(t *testing.T) {
	r := initRepo(t)

	r.write(t, "a.txt", "base")
	require.NoError(t, r.Add("a.txt"))
	_, err := r.Commit("base")
	require.NoError(t, err)

	require.NoError(t, r.CreateBranch("feature"))

	current, all, err := r.Branches()
	require.NoError(t, err)
	assert.Equal(t, "main", current)
	assert.Equal(t, []string{"feature", "main"}, all)

	t.Run("cannot delete the checked-out branch", func(t *testing.T) {
		err := r.DeleteBranch("main")
		assert.True(t, errors.IsKind(err, errors.KindBranchCheckedOut))
	})

	t.Run("delete another branch", func(t *testing.T) {
		require.NoError(t, r.DeleteBranch("feature"))
		_, all, err := r.Branches()
		require.NoError(t, err)
		assert.Equal(t, []string{"main"}, all)
	})
}

func TestSwitch(t *testing.T) {
	r := initRepo(t)

	r.write(t, "shared.txt", "main version")
	require.NoError(t, r.Add("shared.txt"))
	_, err := r.Commit("base")
	require.NoError(t, err)

	t.Run("already on the current branch", func(t *testing.T) {
		err := r.Switch("main", false)
		assert.True(t, errors.IsKind(err, errors.KindAlreadyOnBranch))
	})

	t.Run("switch to an unknown branch", func(t *testing.T) {
		err := r.Switch("ghost", false)
		assert.True(t, errors.IsKind(err, errors.KindBranchNotFound))
	})

	t.Run("create and switch, then diverge and return", func(t *testing.T) {
		require.NoError(t, r.Switch("feature", true))

		current, _, err := r.Branches()
		require.NoError(t, err)
		assert.Equal(t, "feature", current)

		r.write(t, "shared.txt", "feature version")
		require.NoError(t, r.Add("shared.txt"))
		_, err = r.Commit("feature work")
		require.NoError(t, err)

		require.NoError(t, r.Switch("main", false))
		data, err := os.ReadFile(r.Abs("shared.txt"))
		require.NoError(t, err)
		assert.Equal(t, "main version", string(data))
	})
}

func TestMergeEndToEnd(t *testing.T) {
	r := initRepo(t)

	r.write(t, "base.txt", "base")
	require.NoError(t, r.Add("base.txt"))
	_, err := r.Commit("base")
	require.NoError(t, err)

	require.NoError(t, r.Switch("feature", true))
	r.write(t, "feature.txt", "feature work")
	require.NoError(t, r.Add("feature.txt"))
	_, err = r.Commit("feature work")
	require.NoError(t, err)

	require.NoError(t, r.Switch("main", false))
	res, err := r.Merge("feature")
	require.NoError(t, err)

	// main had no commits of its own past the base, so the merge is a
	// fast-forward.
	assert.Equal(t, worktree.MergeFastForward, res.Kind)
	data, err := os.ReadFile(r.Abs("feature.txt"))
	require.NoError(t, err)
	assert.Equal(t, "feature work", string(data))
}
