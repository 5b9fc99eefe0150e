package commit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grit/internal/errors"
	"grit/internal/object"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "commits"), zap.NewNop(), opts...)
	require.NoError(t, err)
	return store
}

func blob(hash string) object.Blob {
	return object.Blob{Hash: hash}
}

func TestLoadSentinel(t *testing.T) {
	store := newTestStore(t)

	c, err := store.Load("")
	require.NoError(t, err)
	assert.Empty(t, c.Hash)
	assert.Empty(t, c.Tracked)
	assert.False(t, c.Tracks("anything"))
}

func TestCreateSnapshotSemantics(t *testing.T) {
	store := newTestStore(t)

	base, err := store.Create("", "", "first",
		map[string]object.Blob{"a.txt": blob("1111111111111111111111111111111111111111"),
			"b.txt": blob("2222222222222222222222222222222222222222")},
		nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(base))
	assert.Len(t, base.Hash, 40)

	// Child inherits the parent snapshot, applies removals then additions.
	child, err := store.Create(base.Hash, "", "second",
		map[string]object.Blob{"c.txt": blob("3333333333333333333333333333333333333333")},
		map[string]bool{"a.txt": true})
	require.NoError(t, err)

	assert.False(t, child.Tracks("a.txt"))
	assert.True(t, child.Tracks("b.txt"))
	assert.True(t, child.Tracks("c.txt"))
	assert.Equal(t, base.Hash, child.Parent)
	assert.Empty(t, child.MergeParent)
}

func TestCreateHashExcludesSnapshot(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	store := newTestStore(t, WithClock(func() time.Time { return fixed }))

	a, err := store.Create("", "", "msg",
		map[string]object.Blob{"a.txt": blob("1111111111111111111111111111111111111111")}, nil)
	require.NoError(t, err)

	b, err := store.Create("", "", "msg",
		map[string]object.Blob{"b.txt": blob("2222222222222222222222222222222222222222")}, nil)
	require.NoError(t, err)

	// Identity covers parents, message, and timestamp only.
	assert.Equal(t, a.Hash, b.Hash)
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	c, err := store.Create("", "", "round trip",
		map[string]object.Blob{"x": blob("4444444444444444444444444444444444444444")}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(c))

	got, err := store.Load(c.Hash)
	require.NoError(t, err)
	assert.Equal(t, c.Hash, got.Hash)
	assert.Equal(t, c.Message, got.Message)
	assert.Equal(t, c.Timestamp, got.Timestamp)
	assert.Equal(t, c.Tracked, got.Tracked)
}

func TestLoadErrors(t *testing.T) {
	store := newTestStore(t)

	t.Run("missing commit", func(t *testing.T) {
		_, err := store.Load("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		assert.True(t, errors.IsKind(err, errors.KindObjectNotFound))
	})

	t.Run("malformed hash", func(t *testing.T) {
		_, err := store.Load("short")
		assert.True(t, errors.IsKind(err, errors.KindCorruptObject))
	})
}
