package commit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grit/internal/object"
)

// graphStore returns a store whose clock ticks forward one second per
// commit, so timestamp ordering is deterministic.
func graphStore(t *testing.T) *Store {
	t.Helper()
	now := time.Unix(1700000000, 0)
	store, err := NewStore(filepath.Join(t.TempDir(), "commits"), zap.NewNop(),
		WithClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}))
	require.NoError(t, err)
	return store
}

func mustCommit(t *testing.T, s *Store, parent, mergeParent, message string) *Commit {
	t.Helper()
	c, err := s.Create(parent, mergeParent, message,
		map[string]object.Blob{message: {Hash: "1111111111111111111111111111111111111111"}}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(c))
	return c
}

func collect(t *testing.T, it *Iterator) []string {
	t.Helper()
	var messages []string
	for {
		c, ok := it.Next()
		if !ok {
			require.NoError(t, it.Err())
			return messages
		}
		messages = append(messages, c.Message)
	}
}

func TestIterateLinearChain(t *testing.T) {
	store := graphStore(t)

	a := mustCommit(t, store, "", "", "a")
	b := mustCommit(t, store, a.Hash, "", "b")
	c := mustCommit(t, store, b.Hash, "", "c")

	assert.Equal(t, []string{"c", "b", "a"}, collect(t, store.Iterate(c.Hash)))
}

func TestIterateEmptyStart(t *testing.T) {
	store := graphStore(t)

	_, ok := store.Iterate("").Next()
	assert.False(t, ok)
}

func TestIterateMergeHistory(t *testing.T) {
	store := graphStore(t)

	// base <- left          (current branch)
	//      \- right1 <- right2
	// merge has parent=left, mergeParent=right2.
	base := mustCommit(t, store, "", "", "base")
	left := mustCommit(t, store, base.Hash, "", "left")
	right1 := mustCommit(t, store, base.Hash, "", "right1")
	right2 := mustCommit(t, store, right1.Hash, "", "right2")
	merge := mustCommit(t, store, left.Hash, right2.Hash, "merge")

	got := collect(t, store.Iterate(merge.Hash))

	// Most recent first by timestamp, base emitted once at the point of
	// convergence.
	assert.Equal(t, []string{"merge", "right2", "right1", "left", "base"}, got)
}

func TestAncestors(t *testing.T) {
	store := graphStore(t)

	a := mustCommit(t, store, "", "", "a")
	b := mustCommit(t, store, a.Hash, "", "b")

	set, err := store.Ancestors(b.Hash)
	require.NoError(t, err)

	assert.Contains(t, set, b.Hash)
	assert.Contains(t, set, a.Hash)
	assert.Contains(t, set, "") // pre-history sentinel
}

func TestMergeBase(t *testing.T) {
	store := graphStore(t)

	base := mustCommit(t, store, "", "", "base")
	left := mustCommit(t, store, base.Hash, "", "left")
	right := mustCommit(t, store, base.Hash, "", "right")

	t.Run("diverged branches", func(t *testing.T) {
		got, err := store.MergeBase(left.Hash, right.Hash)
		require.NoError(t, err)
		assert.Equal(t, base.Hash, got.Hash)
	})

	t.Run("unrelated histories fall back to the sentinel", func(t *testing.T) {
		other := mustCommit(t, store, "", "", "other")
		got, err := store.MergeBase(left.Hash, other.Hash)
		require.NoError(t, err)
		assert.Empty(t, got.Hash)
	})
}

func TestIsAncestor(t *testing.T) {
	store := graphStore(t)

	a := mustCommit(t, store, "", "", "a")
	b := mustCommit(t, store, a.Hash, "", "b")
	c := mustCommit(t, store, a.Hash, "", "c")

	tests := []struct {
		name       string
		ancestor   string
		descendant string
		want       bool
	}{
		{name: "direct parent", ancestor: a.Hash, descendant: b.Hash, want: true},
		{name: "self", ancestor: b.Hash, descendant: b.Hash, want: true},
		{name: "sibling", ancestor: b.Hash, descendant: c.Hash, want: false},
		{name: "reversed", ancestor: b.Hash, descendant: a.Hash, want: false},
		{name: "sentinel precedes everything", ancestor: "", descendant: c.Hash, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.IsAncestor(tt.ancestor, tt.descendant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
