package attr

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*badger.DB, func()) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)

	return db, func() { db.Close() }
}

func TestStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(db)

	t.Run("Put and List keep insertion order", func(t *testing.T) {
		require.NoError(t, store.Put("*.txt", map[string]Value{"text": ValueTrue}))
		require.NoError(t, store.Put("*.bin", map[string]Value{"text": ValueFalse}))
		require.NoError(t, store.Put("*.md", map[string]Value{"eol": Text("lf")}))

		rules, err := store.List()
		require.NoError(t, err)
		require.Len(t, rules, 3)
		assert.Equal(t, "*.txt", rules[0].Pattern)
		assert.Equal(t, "*.bin", rules[1].Pattern)
		assert.Equal(t, "*.md", rules[2].Pattern)
	})

	t.Run("replacing a pattern keeps its position", func(t *testing.T) {
		require.NoError(t, store.Put("*.bin", map[string]Value{"text": ValueFalse, "eol": Text("crlf")}))

		rules, err := store.List()
		require.NoError(t, err)
		require.Len(t, rules, 3)
		assert.Equal(t, "*.bin", rules[1].Pattern)
		assert.Len(t, rules[1].Attrs, 2)
	})

	t.Run("Load builds a working rule set", func(t *testing.T) {
		rs, err := store.Load()
		require.NoError(t, err)

		vals, err := rs.Lookup("notes.txt", []string{"text"})
		require.NoError(t, err)
		assert.True(t, vals[0].IsTrue())
	})

	t.Run("Delete removes the rule", func(t *testing.T) {
		require.NoError(t, store.Delete("*.md"))

		rules, err := store.List()
		require.NoError(t, err)
		assert.Len(t, rules, 2)

		err = store.Delete("*.md")
		assert.Error(t, err)
	})

	t.Run("bad pattern is rejected before storage", func(t *testing.T) {
		err := store.Put("[", map[string]Value{"text": ValueTrue})
		require.Error(t, err)

		rules, err := store.List()
		require.NoError(t, err)
		assert.Len(t, rules, 2)
	})

	t.Run("empty pattern is rejected", func(t *testing.T) {
		assert.Error(t, store.Put("", map[string]Value{"text": ValueTrue}))
	})
}
