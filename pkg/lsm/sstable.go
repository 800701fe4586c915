package lsm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"
)

// SSTable on-disk layout: a sorted run of data records,
// followed by a sparse index, a bloom filter region, and an 8-byte
// trailer giving the absolute offset of the metadata block.
//
//   data record:   seq(8) | kind(1) | key_len(4) | value_len(4) | key | value
//   metadata block: min_key_len(4) | min_key | max_key_len(4) | max_key
//   sparse index:   count(4) | [key_len(4) | key | offset(8)]*
//   bloom region:   length(4) | serialized bloom filter
//   trailer:        metadata_block_offset(8)
//
// The value bytes are compressed per Options.Compression before
// being written; key bytes and the fixed header are never compressed
// so index/bloom lookups never need to touch the codec.

type sparseIndexEntry struct {
	key    []byte
	offset int64
}

// SSTableMeta describes one immutable run on disk: its level, id,
// byte size, key range, and file path, the unit the version manager
// tracks and the compactor selects for merges.
type SSTableMeta struct {
	ID       uint64
	Level    int
	Path     string
	Size     int64
	MinKey   []byte
	MaxKey   []byte
}

func sstableFileName(level int, id uint64) string {
	return fmt.Sprintf("L%d-%08d.sst", level, id)
}

// WriteSSTable flushes a sorted run of InternalKeyValue (ascending
// key, descending seq — a Memtable.Snapshot or the compactor's merge
// output) to dir/L<level>-<id>.sst and returns its metadata.
func WriteSSTable(dir string, level int, id uint64, entries []InternalKeyValue, opts Options) (SSTableMeta, error) {
	if len(entries) == 0 {
		return SSTableMeta{}, fmt.Errorf("lsm: cannot write empty sstable")
	}
	path := filepath.Join(dir, sstableFileName(level, id))
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return SSTableMeta{}, err
	}
	w := bufio.NewWriter(f)

	var offset int64
	index := make([]sparseIndexEntry, 0, len(entries)/opts.IndexInterval+1)
	bf := NewBloomFilter(len(entries), opts.BloomFPRate)

	for i, e := range entries {
		if i%opts.IndexInterval == 0 {
			index = append(index, sparseIndexEntry{key: append([]byte(nil), e.Key.UserKey...), offset: offset})
		}
		bf.Add(e.Key.UserKey)

		valueBytes := e.Value
		if opts.Compression == "snappy" {
			valueBytes = snappy.Encode(nil, valueBytes)
		}

		rec := make([]byte, 8+1+4+4+len(e.Key.UserKey)+len(valueBytes))
		binary.LittleEndian.PutUint64(rec[0:8], e.Key.Seq)
		rec[8] = byte(e.Key.Kind)
		binary.LittleEndian.PutUint32(rec[9:13], uint32(len(e.Key.UserKey)))
		binary.LittleEndian.PutUint32(rec[13:17], uint32(len(valueBytes)))
		copy(rec[17:17+len(e.Key.UserKey)], e.Key.UserKey)
		copy(rec[17+len(e.Key.UserKey):], valueBytes)

		n, err := w.Write(rec)
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
			return SSTableMeta{}, err
		}
		offset += int64(n)
	}

	metaOffset := offset
	minKey := entries[0].Key.UserKey
	maxKey := entries[len(entries)-1].Key.UserKey
	if err := writeLenPrefixed(w, minKey); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	if err := writeLenPrefixed(w, maxKey); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(index))); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	for _, ie := range index {
		if err := writeLenPrefixed(w, ie.key); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return SSTableMeta{}, err
		}
		if err := binary.Write(w, binary.LittleEndian, uint64(ie.offset)); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return SSTableMeta{}, err
		}
	}

	filterBytes := bf.Serialize()
	if err := binary.Write(w, binary.LittleEndian, uint32(len(filterBytes))); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	if _, err := w.Write(filterBytes); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(metaOffset)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return SSTableMeta{}, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return SSTableMeta{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return SSTableMeta{}, err
	}

	return SSTableMeta{
		ID:     id,
		Level:  level,
		Path:   path,
		Size:   info.Size(),
		MinKey: append([]byte(nil), minKey...),
		MaxKey: append([]byte(nil), maxKey...),
	}, nil
}

func writeLenPrefixed(w *bufio.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// SSTableReader holds an open, memory-light handle onto one on-disk
// run: its sparse index and bloom filter are resident, its data
// region is read on demand with pread-style seeks.
type SSTableReader struct {
	meta        SSTableMeta
	f           *os.File
	index       []sparseIndexEntry
	bloom       *BloomFilter
	compression string
	dataEnd     int64 // offset where the metadata block begins
}

// OpenSSTable opens meta.Path and loads its sparse index and bloom
// filter into memory.
func OpenSSTable(meta SSTableMeta, compression string) (*SSTableReader, error) {
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := info.Size()
	if size < 8 {
		f.Close()
		return nil, fmt.Errorf("lsm: sstable %s too small to contain a trailer", meta.Path)
	}

	trailer := make([]byte, 8)
	if _, err := f.ReadAt(trailer, size-8); err != nil {
		f.Close()
		return nil, err
	}
	metaOffset := int64(binary.LittleEndian.Uint64(trailer))

	tail := make([]byte, size-metaOffset-8)
	if _, err := f.ReadAt(tail, metaOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("lsm: sstable %s metadata block read: %w", meta.Path, err)
	}

	r := &SSTableReader{meta: meta, f: f, compression: compression, dataEnd: metaOffset}
	pos := 0

	minKey, n, err := readLenPrefixed(tail[pos:])
	if err != nil {
		f.Close()
		return nil, err
	}
	pos += n
	maxKey, n, err := readLenPrefixed(tail[pos:])
	if err != nil {
		f.Close()
		return nil, err
	}
	pos += n
	r.meta.MinKey = minKey
	r.meta.MaxKey = maxKey

	if pos+4 > len(tail) {
		f.Close()
		return nil, fmt.Errorf("lsm: sstable %s index count truncated", meta.Path)
	}
	count := binary.LittleEndian.Uint32(tail[pos : pos+4])
	pos += 4
	r.index = make([]sparseIndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, n, err := readLenPrefixed(tail[pos:])
		if err != nil {
			f.Close()
			return nil, err
		}
		pos += n
		if pos+8 > len(tail) {
			f.Close()
			return nil, fmt.Errorf("lsm: sstable %s index entry truncated", meta.Path)
		}
		offset := int64(binary.LittleEndian.Uint64(tail[pos : pos+8]))
		pos += 8
		r.index = append(r.index, sparseIndexEntry{key: key, offset: offset})
	}

	if pos+4 > len(tail) {
		f.Close()
		return nil, fmt.Errorf("lsm: sstable %s bloom length truncated", meta.Path)
	}
	filterLen := binary.LittleEndian.Uint32(tail[pos : pos+4])
	pos += 4
	if pos+int(filterLen) > len(tail) {
		f.Close()
		return nil, fmt.Errorf("lsm: sstable %s bloom body truncated", meta.Path)
	}
	bf, err := DeserializeBloomFilter(tail[pos : pos+int(filterLen)])
	if err != nil {
		f.Close()
		return nil, err
	}
	r.bloom = bf

	return r, nil
}

func readLenPrefixed(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("lsm: length-prefixed field truncated")
	}
	l := binary.LittleEndian.Uint32(data[0:4])
	if len(data) < 4+int(l) {
		return nil, 0, fmt.Errorf("lsm: length-prefixed field body truncated")
	}
	return append([]byte(nil), data[4:4+l]...), 4 + int(l), nil
}

// Meta returns the reader's (possibly disk-refreshed) metadata.
func (r *SSTableReader) Meta() SSTableMeta { return r.meta }

// Close releases the underlying file handle.
func (r *SSTableReader) Close() error { return r.f.Close() }

// MayContain consults the bloom filter before any disk I/O.
func (r *SSTableReader) MayContain(key []byte) bool {
	return r.bloom.MayContain(key)
}

// findStartOffset returns the byte offset to begin a linear scan
// from: the last sparse index entry whose key sorts strictly before
// key (or the start of the data), so every version of key is scanned
// even when its versions span several index entries.
func (r *SSTableReader) findStartOffset(key []byte) int64 {
	i := sort.Search(len(r.index), func(i int) bool {
		return string(r.index[i].key) >= string(key)
	})
	if i == 0 {
		return 0
	}
	return r.index[i-1].offset
}

// Get scans forward from the nearest sparse index entry and returns
// the newest version of key with seq <= seqLimit.
func (r *SSTableReader) Get(key []byte, seqLimit uint64) (Entry, bool, error) {
	if string(key) < string(r.meta.MinKey) || string(key) > string(r.meta.MaxKey) {
		return Entry{}, false, nil
	}
	if !r.MayContain(key) {
		return Entry{}, false, nil
	}

	offset := r.findStartOffset(key)
	buf := make([]byte, r.dataEnd-offset)
	if _, err := r.f.ReadAt(buf, offset); err != nil {
		return Entry{}, false, err
	}

	pos := 0
	for pos < len(buf) {
		rec, n, err := decodeDataRecord(buf[pos:])
		if err != nil {
			return Entry{}, false, err
		}
		pos += n

		cmp := bytes.Compare(rec.Key.UserKey, key)
		if cmp > 0 {
			return Entry{}, false, nil // past key's position; sorted data means no match follows
		}
		if cmp < 0 {
			continue
		}
		if rec.Key.Seq > seqLimit {
			continue
		}
		value := rec.Value
		if r.compression == "snappy" && rec.Key.Kind == KindPut {
			decoded, err := snappy.Decode(nil, value)
			if err != nil {
				return Entry{}, false, err
			}
			value = decoded
		}
		if rec.Key.Kind == KindDel {
			return Entry{Seq: rec.Key.Seq, Kind: KindDel}, true, nil
		}
		return Entry{Value: value, Seq: rec.Key.Seq, Kind: KindPut}, true, nil
	}
	return Entry{}, false, nil
}

type dataRecord struct {
	Key   InternalKey
	Value []byte
}

func decodeDataRecord(data []byte) (dataRecord, int, error) {
	if len(data) < 17 {
		return dataRecord{}, 0, fmt.Errorf("lsm: sstable data record header truncated")
	}
	seq := binary.LittleEndian.Uint64(data[0:8])
	kind := Op(data[8])
	keyLen := binary.LittleEndian.Uint32(data[9:13])
	valueLen := binary.LittleEndian.Uint32(data[13:17])
	total := 17 + int(keyLen) + int(valueLen)
	if len(data) < total {
		return dataRecord{}, 0, fmt.Errorf("lsm: sstable data record body truncated")
	}
	key := append([]byte(nil), data[17:17+int(keyLen)]...)
	value := append([]byte(nil), data[17+int(keyLen):total]...)
	return dataRecord{Key: InternalKey{UserKey: key, Seq: seq, Kind: kind}, Value: value}, total, nil
}

// AllEntries reads the entire data region back into memory in
// on-disk order, for use by the compactor's merge iterator. SSTables
// produced by this engine are sized to keep this affordable; a
// streaming iterator would be the next step past this engine's
// scope.
func (r *SSTableReader) AllEntries() ([]InternalKeyValue, error) {
	buf := make([]byte, r.dataEnd)
	if _, err := r.f.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	var out []InternalKeyValue
	pos := 0
	for pos < len(buf) {
		rec, n, err := decodeDataRecord(buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		value := rec.Value
		if r.compression == "snappy" && rec.Key.Kind == KindPut {
			decoded, err := snappy.Decode(nil, value)
			if err != nil {
				return nil, err
			}
			value = decoded
		}
		out = append(out, InternalKeyValue{Key: rec.Key, Value: value})
	}
	return out, nil
}
