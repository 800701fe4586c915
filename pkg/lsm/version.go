package lsm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

const manifestFileName = "MANIFEST"

// TableVersion is an immutable snapshot of which SSTables make up
// each level. Readers atomic-load a *TableVersion and iterate it
// lock-free; writers build a new one with copyFrom, mutate the copy,
// and atomic-store it back: a copy-on-write discipline built on
// atomic.Pointer.
type TableVersion struct {
	Levels        [][]SSTableMeta // Levels[0] is L0 (overlapping), Levels[i>0] is sorted, non-overlapping
	VersionNumber uint64
	FlushCounter  uint64
	NextTableID   uint64
}

// copyFrom returns a deep copy of v with VersionNumber incremented,
// ready for the caller to mutate and install as the new current
// version.
func (v *TableVersion) copyFrom() *TableVersion {
	out := &TableVersion{
		VersionNumber: v.VersionNumber + 1,
		FlushCounter:  v.FlushCounter,
		NextTableID:   v.NextTableID,
		Levels:        make([][]SSTableMeta, len(v.Levels)),
	}
	for i, level := range v.Levels {
		out.Levels[i] = append([]SSTableMeta(nil), level...)
	}
	return out
}

func (v *TableVersion) ensureLevel(level int) {
	for len(v.Levels) <= level {
		v.Levels = append(v.Levels, nil)
	}
}

// addSSTable appends meta to its level, extending Levels as needed.
func (v *TableVersion) addSSTable(meta SSTableMeta) {
	v.ensureLevel(meta.Level)
	v.Levels[meta.Level] = append(v.Levels[meta.Level], meta)
}

// removeSSTablesByID drops every table in level whose ID is in ids.
func (v *TableVersion) removeSSTablesByID(level int, ids map[uint64]bool) {
	if level >= len(v.Levels) {
		return
	}
	kept := v.Levels[level][:0]
	for _, m := range v.Levels[level] {
		if !ids[m.ID] {
			kept = append(kept, m)
		}
	}
	v.Levels[level] = kept
}

// levelSize sums the on-disk size of every table in level.
func (v *TableVersion) levelSize(level int) int64 {
	if level >= len(v.Levels) {
		return 0
	}
	var total int64
	for _, m := range v.Levels[level] {
		total += m.Size
	}
	return total
}

// VersionManager holds the current TableVersion behind an
// atomic.Pointer, the Go analogue of the source's
// atomic_store/atomic_load on a shared_ptr<TableVersion>, and
// persists every change to a MANIFEST file via write-temp-then-rename
// (manifest format resolved as length-prefixed
// binary records of the whole Levels slice, rewritten wholesale on
// every change rather than appended as a changelog — simpler to
// reason about at this engine's expected SSTable counts and avoids
// ever needing manifest compaction).
type VersionManager struct {
	current atomic.Pointer[TableVersion]
	dir     string
}

// NewVersionManager returns a manager seeded with an empty version
// with no on-disk backing; callers that need durable state should
// use OpenVersionManager.
func NewVersionManager(dir string) *VersionManager {
	vm := &VersionManager{dir: dir}
	vm.current.Store(&TableVersion{NextTableID: 1})
	return vm
}

// OpenVersionManager loads dir/MANIFEST if present, or seeds a fresh
// empty version otherwise.
func OpenVersionManager(dir string) (*VersionManager, error) {
	vm := &VersionManager{dir: dir}
	v, err := loadManifest(dir)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = &TableVersion{NextTableID: 1}
	}
	vm.current.Store(v)
	return vm, nil
}

// Current returns the currently visible version. The returned
// pointer is immutable and safe to read without further
// synchronization.
func (vm *VersionManager) Current() *TableVersion {
	return vm.current.Load()
}

// GetForModification returns a deep copy of Current suitable for an
// in-progress flush or compaction to mutate before calling Install.
func (vm *VersionManager) GetForModification() *TableVersion {
	return vm.current.Load().copyFrom()
}

// Install atomically swaps next in as the current version and
// persists it to the manifest. Readers that already loaded the old
// version keep using it safely until they next call Current.
func (vm *VersionManager) Install(next *TableVersion) error {
	if err := saveManifest(vm.dir, next); err != nil {
		return err
	}
	vm.current.Store(next)
	return nil
}

func saveManifest(dir string, v *TableVersion) error {
	path := filepath.Join(dir, manifestFileName)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	if err := binary.Write(w, binary.LittleEndian, v.VersionNumber); err != nil {
		return manifestWriteErr(f, tmpPath, err)
	}
	if err := binary.Write(w, binary.LittleEndian, v.FlushCounter); err != nil {
		return manifestWriteErr(f, tmpPath, err)
	}
	if err := binary.Write(w, binary.LittleEndian, v.NextTableID); err != nil {
		return manifestWriteErr(f, tmpPath, err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(v.Levels))); err != nil {
		return manifestWriteErr(f, tmpPath, err)
	}
	for _, level := range v.Levels {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(level))); err != nil {
			return manifestWriteErr(f, tmpPath, err)
		}
		for _, m := range level {
			if err := writeTableMeta(w, m); err != nil {
				return manifestWriteErr(f, tmpPath, err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return manifestWriteErr(f, tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		return manifestWriteErr(f, tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	return syncDir(dir)
}

func manifestWriteErr(f *os.File, tmpPath string, err error) error {
	f.Close()
	os.Remove(tmpPath)
	return err
}

func writeTableMeta(w *bufio.Writer, m SSTableMeta) error {
	if err := binary.Write(w, binary.LittleEndian, m.ID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(m.Level)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.Size); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, m.MinKey); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, m.MaxKey); err != nil {
		return err
	}
	return nil
}

func loadManifest(dir string) (*TableVersion, error) {
	path := filepath.Join(dir, manifestFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data)
	v := &TableVersion{}
	if err := binary.Read(r, binary.LittleEndian, &v.VersionNumber); err != nil {
		return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &v.FlushCounter); err != nil {
		return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &v.NextTableID); err != nil {
		return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	var numLevels uint32
	if err := binary.Read(r, binary.LittleEndian, &numLevels); err != nil {
		return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	v.Levels = make([][]SSTableMeta, numLevels)
	for i := range v.Levels {
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
		}
		v.Levels[i] = make([]SSTableMeta, count)
		for j := range v.Levels[i] {
			m, err := readTableMeta(r, dir, i)
			if err != nil {
				return nil, err
			}
			v.Levels[i][j] = m
		}
	}
	return v, nil
}

func readTableMeta(r *bytes.Reader, dir string, level int) (SSTableMeta, error) {
	var m SSTableMeta
	m.Level = level
	if err := binary.Read(r, binary.LittleEndian, &m.ID); err != nil {
		return m, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	var lvl int32
	if err := binary.Read(r, binary.LittleEndian, &lvl); err != nil {
		return m, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &m.Size); err != nil {
		return m, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	minKey, err := readLenPrefixedFromReader(r)
	if err != nil {
		return m, err
	}
	maxKey, err := readLenPrefixedFromReader(r)
	if err != nil {
		return m, err
	}
	m.MinKey = minKey
	m.MaxKey = maxKey
	m.Path = filepath.Join(dir, sstableFileName(level, m.ID))
	return m, nil
}

func readLenPrefixedFromReader(r *bytes.Reader) ([]byte, error) {
	var l uint32
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	buf := make([]byte, l)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("lsm: manifest truncated: %w", err)
	}
	return buf, nil
}

// syncDir fsyncs the directory entry so the manifest rename survives
// a crash, not just the file's own contents.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
