package lsm

import (
	"bytes"
	"sync"

	"github.com/huandu/skiplist"
)

// entryOverheadBytes is the fixed per-entry WAL/memtable bookkeeping
// cost used for size accounting: 4 checksum + 2 key_len + 2 value_len
// + 1 op + 8 seq.
const entryOverheadBytes = 17

// memtableOrdKey is the skiplist key: userKey ascending, then seq
// descending, so Find(userKey, seqLimit) lands on the newest visible
// version directly.
type memtableOrdKey struct {
	userKey []byte
	seq     uint64
}

func compareMemtableKey(a, b interface{}) int {
	ka := a.(memtableOrdKey)
	kb := b.(memtableOrdKey)
	if c := bytes.Compare(ka.userKey, kb.userKey); c != 0 {
		return c
	}
	switch {
	case ka.seq > kb.seq:
		return -1
	case ka.seq < kb.seq:
		return 1
	default:
		return 0
	}
}

type memtableVal struct {
	kind  Op
	value []byte
}

// Memtable is the mutable in-memory sorted store of every key
// version written to it, backed by a skiplist. Safe for many
// concurrent readers and one writer.
type Memtable struct {
	mu         sync.RWMutex
	list       *skiplist.SkipList
	approxSize int64
	numEntries int64
}

// NewMemtable returns an empty, writable memtable.
func NewMemtable() *Memtable {
	return &Memtable{list: skiplist.New(skiplist.GreaterThanFunc(func(a, b interface{}) int {
		return compareMemtableKey(a, b)
	}))}
}

// Put inserts or overwrites the value for key at seq.
func (m *Memtable) Put(key, value []byte, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memtableOrdKey{userKey: append([]byte(nil), key...), seq: seq}
	m.list.Set(k, memtableVal{kind: KindPut, value: append([]byte(nil), value...)})
	m.approxSize += entryOverheadBytes + int64(len(key)) + int64(len(value))
	m.numEntries++
}

// Del inserts a tombstone for key at seq.
func (m *Memtable) Del(key []byte, seq uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memtableOrdKey{userKey: append([]byte(nil), key...), seq: seq}
	m.list.Set(k, memtableVal{kind: KindDel})
	m.approxSize += entryOverheadBytes + int64(len(key))
	m.numEntries++
}

// Get returns the newest version of key with seq <= seqLimit. ok is
// false if no version is visible; a visible tombstone is returned
// with ok true and Kind KindDel.
func (m *Memtable) Get(key []byte, seqLimit uint64) (entry Entry, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(key, seqLimit)
}

func (m *Memtable) getLocked(key []byte, seqLimit uint64) (Entry, bool) {
	elem := m.list.Find(memtableOrdKey{userKey: key, seq: seqLimit})
	if elem == nil {
		return Entry{}, false
	}
	k := elem.Key().(memtableOrdKey)
	if !bytes.Equal(k.userKey, key) {
		return Entry{}, false
	}
	v := elem.Value.(memtableVal)
	if v.kind == KindDel {
		return Entry{Seq: k.seq, Kind: KindDel}, true
	}
	return Entry{Value: v.value, Seq: k.seq, Kind: KindPut}, true
}

// ApproxSize returns the approximate memory footprint used to decide
// when to rotate.
func (m *Memtable) ApproxSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.approxSize
}

// NumEntries returns the number of versions stored (including
// tombstones and superseded versions of the same key).
func (m *Memtable) NumEntries() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.numEntries
}

// Clear empties the memtable in place.
func (m *Memtable) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = skiplist.New(skiplist.GreaterThanFunc(func(a, b interface{}) int {
		return compareMemtableKey(a, b)
	}))
	m.approxSize = 0
	m.numEntries = 0
}

// Snapshot returns every InternalKey/value pair in key-ascending,
// seq-descending order — the shape the SSTable builder and the
// compactor's merge iterator both consume.
func (m *Memtable) Snapshot() []InternalKeyValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]InternalKeyValue, 0, m.list.Len())
	for elem := m.list.Front(); elem != nil; elem = elem.Next() {
		k := elem.Key().(memtableOrdKey)
		v := elem.Value.(memtableVal)
		out = append(out, InternalKeyValue{
			Key:   InternalKey{UserKey: k.userKey, Seq: k.seq, Kind: v.kind},
			Value: v.value,
		})
	}
	return out
}

// InternalKeyValue pairs an InternalKey with its (possibly empty for
// tombstones) value.
type InternalKeyValue struct {
	Key   InternalKey
	Value []byte
}
