package lsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableVersionCopyFromIsIndependent(t *testing.T) {
	v := &TableVersion{Levels: [][]SSTableMeta{{{ID: 1}}}, VersionNumber: 5}
	dup := v.copyFrom()

	assert.Equal(t, uint64(6), dup.VersionNumber)
	dup.Levels[0][0].ID = 99
	assert.Equal(t, uint64(1), v.Levels[0][0].ID, "mutating the copy must not affect the original")
}

func TestTableVersionAddAndRemoveSSTable(t *testing.T) {
	v := &TableVersion{}
	v.addSSTable(SSTableMeta{ID: 1, Level: 0, Size: 10})
	v.addSSTable(SSTableMeta{ID: 2, Level: 0, Size: 20})
	v.addSSTable(SSTableMeta{ID: 3, Level: 1, Size: 30})

	assert.Equal(t, int64(30), v.levelSize(0))
	assert.Equal(t, int64(30), v.levelSize(1))

	v.removeSSTablesByID(0, map[uint64]bool{1: true})
	require.Len(t, v.Levels[0], 1)
	assert.Equal(t, uint64(2), v.Levels[0][0].ID)
}

func TestVersionManagerInstallAndPersist(t *testing.T) {
	dir := t.TempDir()
	vm, err := OpenVersionManager(dir)
	require.NoError(t, err)

	next := vm.GetForModification()
	next.addSSTable(SSTableMeta{ID: 1, Level: 0, Size: 100, MinKey: []byte("a"), MaxKey: []byte("z")})
	next.NextTableID = 2
	require.NoError(t, vm.Install(next))

	assert.Equal(t, uint64(1), vm.Current().VersionNumber)
	assert.Len(t, vm.Current().Levels[0], 1)

	reopened, err := OpenVersionManager(dir)
	require.NoError(t, err)
	require.Len(t, reopened.Current().Levels[0], 1)
	got := reopened.Current().Levels[0][0]
	assert.Equal(t, uint64(1), got.ID)
	assert.Equal(t, "a", string(got.MinKey))
	assert.Equal(t, "z", string(got.MaxKey))
	assert.Equal(t, uint64(2), reopened.Current().NextTableID)
}

func TestOpenVersionManagerWithoutManifestSeedsEmpty(t *testing.T) {
	vm, err := OpenVersionManager(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), vm.Current().NextTableID)
	assert.Empty(t, vm.Current().Levels)
}
