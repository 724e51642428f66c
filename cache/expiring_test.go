package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExpiring_GetSet(t *testing.T) {
	c := NewExpiring[[]string](time.Minute)

	_, ok := c.Get("tables")
	assert.False(t, ok)

	c.Set("tables", []string{"a", "b"})
	got, ok := c.Get("tables")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	c.Delete("tables")
	_, ok = c.Get("tables")
	assert.False(t, ok)
}

func TestExpiring_ExpiredHiddenUntilCleanup(t *testing.T) {
	c := NewExpiring[int](20 * time.Millisecond)
	c.Set("k", 1)
	assert.Equal(t, 1, c.Len())

	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len(), "reads do not evict")

	c.Cleanup()
	assert.Equal(t, 0, c.Len())
}

func TestExpiring_MissDoesNotDropConcurrentSet(t *testing.T) {
	c := NewExpiring[int](time.Minute)

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.Get("k")
			}
		}()
	}
	c.Set("k", 42)
	wg.Wait()

	got, ok := c.Get("k")
	assert.True(t, ok, "value set while readers were missing is kept")
	assert.Equal(t, 42, got)
}

func TestExpiring_Cleanup(t *testing.T) {
	c := NewExpiring[int](20 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 2, c.Len(), "no janitor runs in the background")

	c.Cleanup()
	assert.Equal(t, 0, c.Len())
}

func TestExpiring_Clear(t *testing.T) {
	c := NewExpiring[string](time.Minute)
	c.Set("a", "x")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
