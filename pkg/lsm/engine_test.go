package lsm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T, opts Options) *Engine {
	opts.Dir = t.TempDir()
	e, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEnginePutGetDelete(t *testing.T) {
	e := openTestEngine(t, Options{})

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	val, ok, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(val))

	existed, err := e.Delete([]byte("a"))
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok, err = e.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	existed, err = e.Delete([]byte("never-existed"))
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestEngineGetMissingKey(t *testing.T) {
	e := openTestEngine(t, Options{})
	_, ok, err := e.Get([]byte("nope"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnginePutOverwritesPreviousValue(t *testing.T) {
	e := openTestEngine(t, Options{})
	require.NoError(t, e.Put([]byte("a"), []byte("v1")))
	require.NoError(t, e.Put([]byte("a"), []byte("v2")))

	val, ok, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(val))
}

func TestEngineFlushMovesMemtableToSSTable(t *testing.T) {
	e := openTestEngine(t, Options{})
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Flush())

	v := e.CurrentVersion()
	require.NotEmpty(t, v.Levels)
	assert.Len(t, v.Levels[0], 1)

	val, ok, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(val))
}

func TestEngineRecoversFromWALAfterReopen(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Dir: dir}

	e, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))
	require.NoError(t, e.Close())

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()

	val, ok, err := e2.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(val))

	val, ok, err = e2.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(val))
}

func TestEngineCompactionMergesL0IntoL1(t *testing.T) {
	opts := Options{L0Trigger: 2}
	e := openTestEngine(t, opts)

	for i := 0; i < 2; i++ {
		require.NoError(t, e.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v")))
		require.NoError(t, e.Flush())
	}
	e.WaitForCompaction()

	v := e.CurrentVersion()
	assert.Empty(t, v.Levels[0], "L0 should have been compacted away once the trigger fired")
	require.Len(t, v.Levels, 2)
	assert.NotEmpty(t, v.Levels[1])

	for i := 0; i < 2; i++ {
		val, ok, err := e.Get([]byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", string(val))
	}
}

func TestEnginePauseAndResumeCompaction(t *testing.T) {
	opts := Options{L0Trigger: 1}
	e := openTestEngine(t, opts)
	e.PauseCompaction()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Flush())
	e.WaitForCompaction()

	v := e.CurrentVersion()
	assert.NotEmpty(t, v.Levels[0], "compaction must not run while paused")

	e.ResumeCompaction()
	e.WaitForCompaction()

	v = e.CurrentVersion()
	assert.Empty(t, v.Levels[0])
}

func TestEngineClearDataResetsEverything(t *testing.T) {
	e := openTestEngine(t, Options{})
	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Flush())

	require.NoError(t, e.ClearData())

	_, ok, err := e.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, e.CurrentVersion().Levels)
}

func TestEngineRejectsUnsupportedCompression(t *testing.T) {
	_, err := Open(Options{Dir: t.TempDir(), Compression: "zstd"})
	assert.Error(t, err)
}

func TestEnginePutAsyncCompletesAndIsVisible(t *testing.T) {
	e := openTestEngine(t, Options{})
	req, err := e.PutAsync([]byte("a"), []byte("1"))
	require.NoError(t, err)
	require.NoError(t, req.Wait())

	val, ok, err := e.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(val))
}

func TestEngineCommitHookObservesAppliedWrites(t *testing.T) {
	e := openTestEngine(t, Options{})

	seen := make(chan CommitRecord, 10)
	e.SetCommitHook(func(records []CommitRecord) {
		for _, r := range records {
			seen <- r
		}
	})

	require.NoError(t, e.Put([]byte("a"), []byte("1")))

	select {
	case rec := <-seen:
		assert.Equal(t, "a", string(rec.Key))
		assert.Equal(t, KindPut, rec.Kind)
	case <-time.After(time.Second):
		t.Fatal("commit hook was not invoked for a committed write")
	}
}

func TestEngineCloseThenOperationsFail(t *testing.T) {
	e := openTestEngine(t, Options{})
	require.NoError(t, e.Close())

	err := e.Put([]byte("a"), []byte("1"))
	assert.ErrorIs(t, err, ErrClosed)

	_, _, err = e.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrClosed)
}
