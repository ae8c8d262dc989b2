package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheStoreAndGet(t *testing.T) {
	c := New[string]()

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Store("job-1", "running")
	val, ok := c.Get("job-1")
	require.True(t, ok)
	require.Equal(t, "running", val)
}

func TestCacheRemove(t *testing.T) {
	c := New[int]()
	c.Store("job-1", 42)
	c.Remove("trace-1", "job-1")

	_, ok := c.Get("job-1")
	require.False(t, ok)
}

func TestCacheKeysAndLen(t *testing.T) {
	c := New[int]()
	c.Store("a", 1)
	c.Store("b", 2)

	require.Equal(t, 2, c.Len())
	require.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
