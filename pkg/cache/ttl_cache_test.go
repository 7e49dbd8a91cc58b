package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache[[]string](time.Minute, time.Minute)
	c.Set("group:web", []string{"app1", "app2"})

	got, ok := c.Get("group:web")
	assert.True(t, ok)
	assert.Equal(t, []string{"app1", "app2"}, got)

	c.Delete("group:web")
	_, ok = c.Get("group:web")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[int](time.Minute, time.Minute)
	c.SetWithTTL("short", 1, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("short")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestTTLCacheFlush(t *testing.T) {
	c := NewTTLCache[int](time.Minute, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Len())
	c.Flush()
	assert.Equal(t, 0, c.Len())
}
