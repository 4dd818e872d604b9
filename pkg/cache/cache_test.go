package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSuite runs the shared behavior tests against a cache implementation.
func testSuite(t *testing.T, createCache func() Cache[string]) {
	t.Run("BasicOperations", func(t *testing.T) {
		c := createCache()
		defer c.Close()

		_, exists := c.Get("remote-id:2244")
		assert.False(t, exists)

		isNew, err := c.Set("remote-id:2244", "payload-a")
		require.NoError(t, err)
		assert.True(t, isNew)

		value, exists := c.Get("remote-id:2244")
		require.True(t, exists)
		assert.Equal(t, "payload-a", value)

		isNew, err = c.Set("remote-id:2244", "payload-b")
		require.NoError(t, err)
		assert.False(t, isNew, "update of existing entry")

		value, _ = c.Get("remote-id:2244")
		assert.Equal(t, "payload-b", value)

		deleted, err := c.Delete("remote-id:2244")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = c.Delete("remote-id:2244")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("EmptyKeyRejected", func(t *testing.T) {
		c := createCache()
		defer c.Close()

		_, err := c.Set("", "x")
		assert.Error(t, err)
		_, err = c.Delete("")
		assert.Error(t, err)
	})

	t.Run("SizeAndKeys", func(t *testing.T) {
		c := createCache()
		defer c.Close()

		assert.Equal(t, 0, c.Size())
		_, _ = c.Set("k1", "v1")
		_, _ = c.Set("k2", "v2")
		assert.Equal(t, 2, c.Size())
		assert.ElementsMatch(t, []string{"k1", "k2"}, c.Keys())

		require.NoError(t, c.Clear())
		assert.Equal(t, 0, c.Size())
		_, exists := c.Get("k1")
		assert.False(t, exists)
	})

	t.Run("StatsTracking", func(t *testing.T) {
		c := createCache()
		defer c.Close()

		_, _ = c.Set("k", "v")
		c.Get("k")
		c.Get("absent")

		stats := c.Stats()
		require.NotNil(t, stats)
		assert.Equal(t, int64(1), stats.Hits())
		assert.Equal(t, int64(1), stats.Misses())
		assert.Equal(t, int64(1), stats.Sets())
		assert.InDelta(t, 0.5, stats.HitRatio(), 1e-9)
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		c := createCache()
		defer c.Close()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					key := fmt.Sprintf("k%d", j%10)
					_, _ = c.Set(key, fmt.Sprintf("v%d-%d", n, j))
					c.Get(key)
				}
			}(i)
		}
		wg.Wait()
	})
}

func TestSimpleCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewSimple[string]()
		require.NoError(t, err)
		return c
	})
}

func TestLRUCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewLRU[string](100)
		require.NoError(t, err)
		return c
	})
}

func TestNoopCacheAlwaysMisses(t *testing.T) {
	c := NewNoop[string]()
	isNew, err := c.Set("k", "v")
	require.NoError(t, err)
	assert.False(t, isNew)

	_, exists := c.Get("k")
	assert.False(t, exists)
	assert.Equal(t, 0, c.Size())
	assert.Nil(t, c.Stats())
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default config", DefaultConfig(), false},
		{"simple strategy", Config{Enabled: true, Strategy: StrategySimple}, false},
		{"disabled yields noop", Config{Enabled: false}, false},
		{"lru requires positive size", Config{Enabled: true, Strategy: StrategyLRU, MaxSize: 0}, true},
		{"unknown strategy", Config{Enabled: true, Strategy: "ring"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewFromConfig[string](tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}
