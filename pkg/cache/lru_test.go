package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[string](2)
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get("a")

	_, _ = c.Set("c", "3")

	_, exists := c.Get("b")
	assert.False(t, exists, "least recently used entry should be evicted")
	_, exists = c.Get("a")
	assert.True(t, exists)
	_, exists = c.Get("c")
	assert.True(t, exists)
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestLRUEvictionCallback(t *testing.T) {
	var evictedKeys []string
	c, err := NewLRU[string](1, WithEvictionCallback[string](func(key string, _ string) {
		evictedKeys = append(evictedKeys, key)
	}))
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")
	_, _ = c.Delete("b")

	assert.Equal(t, []string{"a", "b"}, evictedKeys)
}

func TestLRUKeysOrdering(t *testing.T) {
	c, err := NewLRU[string](3)
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")
	_, _ = c.Set("c", "3")
	c.Get("a")

	// Most recently used first.
	assert.Equal(t, []string{"a", "c", "b"}, c.Keys())
}

func TestLRURejectsNonPositiveSize(t *testing.T) {
	_, err := NewLRU[string](0)
	assert.Error(t, err)
	_, err = NewLRU[string](-5)
	assert.Error(t, err)
}
