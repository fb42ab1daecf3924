package slot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlot_Put(t *testing.T) {
	t.Run("put", func(t *testing.T) {
		s := New("node-1")

		before := s.Version()
		version, err := s.Put("k1", "v1")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, version, before)

		v, lookupVersion, ok := s.Lookup("k1")
		assert.True(t, ok)
		assert.Equal(t, "v1", v)
		assert.Equal(t, version, lookupVersion)
	})

	t.Run("empty key", func(t *testing.T) {
		s := New("node-1")

		version, err := s.Put("", "v1")
		assert.ErrorIs(t, err, ErrEmptyKey)
		assert.Equal(t, VersionRejected, version)
		assert.Equal(t, int64(0), s.Version())
		assert.Equal(t, 0, s.Len())
	})

	t.Run("clock not advanced", func(t *testing.T) {
		s := New("node-1")
		now := time.UnixMilli(1000)
		s.now = func() time.Time { return now }

		v1, err := s.Put("k1", "v1")
		require.NoError(t, err)
		v2, err := s.Put("k1", "v2")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), v1)
		assert.Equal(t, int64(1001), v2)

		// Clock going backwards must not decrease the version.
		now = time.UnixMilli(500)
		v3, err := s.Put("k2", "v3")
		require.NoError(t, err)
		assert.Equal(t, int64(1002), v3)
	})
}

func TestSlot_PutWithVersion(t *testing.T) {
	s := New("node-1")

	version, err := s.PutWithVersion("k1", "v1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), version)

	// Same version is accepted.
	version, err = s.PutWithVersion("k1", "v2", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), version)

	version, err = s.PutWithVersion("k1", "v3", 9)
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Equal(t, VersionRejected, version)

	v, current, _ := s.Lookup("k1")
	assert.Equal(t, "v2", v)
	assert.Equal(t, int64(10), current)
}

func TestSlot_Delete(t *testing.T) {
	t.Run("delete", func(t *testing.T) {
		s := New("node-1")
		_, err := s.Put("k1", "v1")
		require.NoError(t, err)

		before := s.Version()
		version, err := s.Delete("k1")
		require.NoError(t, err)
		assert.Greater(t, version, before)

		_, _, ok := s.Lookup("k1")
		assert.False(t, ok)
		assert.Equal(t, 0, s.MemoryUsed())
	})

	t.Run("not found", func(t *testing.T) {
		s := New("node-1")
		_, err := s.PutWithVersion("k1", "v1", 10)
		require.NoError(t, err)

		version, err := s.Delete("unknown")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, VersionRejected, version)
		assert.Equal(t, int64(10), s.Version())
	})

	t.Run("with version", func(t *testing.T) {
		s := New("node-1")
		_, err := s.PutWithVersion("k1", "v1", 10)
		require.NoError(t, err)

		_, err = s.DeleteWithVersion("k1", 5)
		assert.ErrorIs(t, err, ErrStaleVersion)

		_, err = s.DeleteWithVersion("unknown", 11)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(10), s.Version())

		version, err := s.DeleteWithVersion("k1", 11)
		require.NoError(t, err)
		assert.Equal(t, int64(11), version)
		assert.Equal(t, 0, s.Len())
	})
}

func TestSlot_MergeAll(t *testing.T) {
	t.Run("replaces entries", func(t *testing.T) {
		s := New("node-2")
		_, err := s.PutWithVersion("old", "v", 50)
		require.NoError(t, err)

		version, err := s.MergeAll(map[string]string{"x": "1"}, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(100), version)

		entries, current := s.Snapshot()
		assert.Equal(t, map[string]string{"x": "1"}, entries)
		assert.Equal(t, int64(100), current)
		assert.Equal(t, 2, s.MemoryUsed())
	})

	t.Run("stale", func(t *testing.T) {
		s := New("node-2")
		_, err := s.MergeAll(map[string]string{"x": "1"}, 100)
		require.NoError(t, err)

		version, err := s.MergeAll(map[string]string{"y": "2"}, 99)
		assert.ErrorIs(t, err, ErrStaleVersion)
		assert.Equal(t, VersionRejected, version)

		entries, current := s.Snapshot()
		assert.Equal(t, map[string]string{"x": "1"}, entries)
		assert.Equal(t, int64(100), current)
	})

	t.Run("same version idempotent", func(t *testing.T) {
		s := New("node-2")
		_, err := s.MergeAll(map[string]string{"x": "1"}, 100)
		require.NoError(t, err)
		_, err = s.MergeAll(map[string]string{"x": "1"}, 100)
		require.NoError(t, err)

		entries, current := s.Snapshot()
		assert.Equal(t, map[string]string{"x": "1"}, entries)
		assert.Equal(t, int64(100), current)
	})

	t.Run("version monotonic", func(t *testing.T) {
		s := New("node-2")

		var observed []int64
		for _, v := range []int64{5, 3, 8, 8, 2, 10} {
			_, _ = s.MergeAll(map[string]string{}, v)
			observed = append(observed, s.Version())
		}
		assert.Equal(t, []int64{5, 5, 8, 8, 8, 10}, observed)
	})
}

func TestSlot_MemoryUsed(t *testing.T) {
	s := New("node-1")

	_, err := s.Put("key", "value")
	require.NoError(t, err)
	assert.Equal(t, 8, s.MemoryUsed())

	// Overwriting must replace the old size rather than add to it.
	_, err = s.Put("key", "v")
	require.NoError(t, err)
	assert.Equal(t, 4, s.MemoryUsed())

	_, err = s.Delete("key")
	require.NoError(t, err)
	assert.Equal(t, 0, s.MemoryUsed())
}

func TestSlot_Concurrent(t *testing.T) {
	s := New("node-1")

	var wg sync.WaitGroup
	for i := 0; i != 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j != 100; j++ {
				_, _ = s.Put("k", "v")
				_, _ = s.MergeAll(map[string]string{"k": "v"}, int64(j))
				_, _, _ = s.Lookup("k")
			}
		}(i)
	}
	wg.Wait()

	v, _, ok := s.Lookup("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
