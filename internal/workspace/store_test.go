package workspace

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllocateCreatesLayoutAndMeta(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	paths, err := store.Allocate("dep-1", "local", false)
	require.NoError(t, err)
	require.DirExists(t, paths.Source)
	require.DirExists(t, paths.TF)
	require.DirExists(t, paths.Manifests)
	require.DirExists(t, paths.Logs)

	m, err := store.ReadMeta("dep-1")
	require.NoError(t, err)
	require.Equal(t, "init", m.Status)
	require.Equal(t, "local", m.Mode)
}

func TestAllocateRefusesExistingUnlessResumable(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.Allocate("dep-1", "local", false)
	require.NoError(t, err)

	_, err = store.Allocate("dep-1", "local", false)
	require.Error(t, err)

	_, err = store.Allocate("dep-1", "local", true)
	require.NoError(t, err)
}

func TestReleaseRefusesWithoutForceWhenStateExists(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	paths, err := store.Allocate("dep-1", "cloud-hosted", false)
	require.NoError(t, err)
	require.NoError(t, MarkStateExists(paths))

	err = store.Release("dep-1", false)
	require.Error(t, err)

	require.NoError(t, store.Release("dep-1", true))
	require.NoDirExists(t, paths.Root)
}

func TestReleaseSucceedsWithoutStateMarker(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = store.Allocate("dep-1", "local", false)
	require.NoError(t, err)
	require.NoError(t, store.Release("dep-1", false))
}

func TestLockSerializesConcurrentAccess(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	var counter int32
	var maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.Lock("dep-1")
			defer unlock()
			n := atomic.AddInt32(&counter, 1)
			if n > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, n)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&counter, -1)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, maxSeen)
}
