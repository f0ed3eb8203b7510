package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Seeded(t *testing.T) {
	seed := map[string]any{"search.index_name": "idx"}
	store := NewConfigStore(seed)
	seed["search.index_name"] = "changed"

	assert.Equal(t, "idx", store.GetString("search.index_name"))
	assert.Equal(t, ":memory:", store.Path())
	assert.NoError(t, store.Save())
	assert.NoError(t, store.Load())
}

func TestNewConfigStore_Nil(t *testing.T) {
	store := NewConfigStore(nil)
	require.NotNil(t, store)

	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestConfigStore_TypedGetters(t *testing.T) {
	store := NewConfigStore(map[string]any{
		"str":   "hello",
		"int":   7,
		"int64": int64(8),
		"float": float64(9),
		"bool":  true,
		"list":  []any{"a", 1, "b"},
		"strs":  []string{"x"},
	})

	assert.Equal(t, "hello", store.GetString("str"))
	assert.Equal(t, 7, store.GetInt("int"))
	assert.Equal(t, 8, store.GetInt("int64"))
	assert.Equal(t, 9, store.GetInt("float"))
	assert.True(t, store.GetBool("bool"))
	assert.Equal(t, []string{"a", "b"}, store.GetStringSlice("list"))
	assert.Equal(t, []string{"x"}, store.GetStringSlice("strs"))

	assert.Empty(t, store.GetString("int"))
	assert.Zero(t, store.GetInt("str"))
	assert.False(t, store.GetBool("missing"))
	assert.Nil(t, store.GetStringSlice("str"))
}

func TestConfigStore_Set(t *testing.T) {
	store := NewConfigStore(nil)

	require.NoError(t, store.Set("purge.concurrency", 3))
	require.NoError(t, store.Set("purge.concurrency", 5))

	assert.Equal(t, 5, store.GetInt("purge.concurrency"))
}

func TestConfigStore_Concurrency(t *testing.T) {
	store := NewConfigStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Set("k", i))
		}(i)
		go func() {
			defer wg.Done()
			_ = store.GetInt("k")
		}()
	}
	wg.Wait()

	_, ok := store.Get("k")
	assert.True(t, ok)
}
