package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const walFileName = "wal.log"

// walRecord is a single logged write: crc32(4) | seq(8) | op(1) |
// key_len(4) | value_len(4) | key | value, little-endian, CRC over
// every byte after the CRC field.
type walRecord struct {
	Seq   uint64
	Op    Op
	Key   []byte
	Value []byte
}

func encodeWALRecord(r walRecord) []byte {
	body := make([]byte, 8+1+4+4+len(r.Key)+len(r.Value))
	binary.LittleEndian.PutUint64(body[0:8], r.Seq)
	body[8] = byte(r.Op)
	binary.LittleEndian.PutUint32(body[9:13], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(body[13:17], uint32(len(r.Value)))
	copy(body[17:17+len(r.Key)], r.Key)
	copy(body[17+len(r.Key):], r.Value)

	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(body))
	copy(buf[4:], body)
	return buf
}

// decodeWALRecord parses one record starting at data[0]. It returns
// the record, the number of bytes consumed, and an error if the
// fixed header doesn't fit or the checksum fails.
func decodeWALRecord(data []byte) (walRecord, int, error) {
	const headerLen = 4 + 8 + 1 + 4 + 4
	if len(data) < headerLen {
		return walRecord{}, 0, io.ErrUnexpectedEOF
	}
	storedCRC := binary.LittleEndian.Uint32(data[0:4])
	body := data[4:headerLen]
	seq := binary.LittleEndian.Uint64(body[0:8])
	op := Op(body[8])
	keyLen := binary.LittleEndian.Uint32(body[9:13])
	valueLen := binary.LittleEndian.Uint32(body[13:17])

	total := headerLen + int(keyLen) + int(valueLen)
	if len(data) < total {
		return walRecord{}, 0, io.ErrUnexpectedEOF
	}
	fullBody := data[4:total]
	if crc32.ChecksumIEEE(fullBody) != storedCRC {
		return walRecord{}, 0, ErrCorrupt
	}
	key := append([]byte(nil), data[headerLen:headerLen+int(keyLen)]...)
	value := append([]byte(nil), data[headerLen+int(keyLen):total]...)
	return walRecord{Seq: seq, Op: op, Key: key, Value: value}, total, nil
}

// WAL is an append-only log with background group-commit syncing:
// writes land in an in-memory buffer immediately and are visible to
// Replay after a crash only once fsynced; a background goroutine
// swaps the active
// buffer out and fsyncs it either on a timer or once it crosses a
// high-water mark, and Flush blocks the caller until that
// happens.
type WAL struct {
	f    *os.File
	path string

	mu            sync.Mutex
	cond          *sync.Cond
	writeBuf      []byte
	pendingGen    uint64 // generation assigned to the latest swap; the next swap gets pendingGen+1
	syncedGen     uint64 // highest generation durably fsynced
	highWater     int
	closed        bool

	syncInterval time.Duration
	doneCh       chan struct{}
}

// OpenWAL opens or creates dir/wal.log for appending and starts the
// background syncer.
func OpenWAL(dir string, syncIntervalMillis, highWaterBytes int) (*WAL, error) {
	path := filepath.Join(dir, walFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("lsm: open wal: %w", err)
	}
	w := &WAL{
		f:            f,
		path:         path,
		highWater:    highWaterBytes,
		syncInterval: time.Duration(syncIntervalMillis) * time.Millisecond,
		doneCh:       make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.syncLoop()
	return w, nil
}

// Append buffers a record for a later group-commit sync and returns
// the generation number that must be synced for this write to be
// durable. It does not block on I/O.
func (w *WAL) Append(r walRecord) (generation uint64, err error) {
	encoded := encodeWALRecord(r)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, ErrClosed
	}
	w.writeBuf = append(w.writeBuf, encoded...)
	gen := w.pendingGen + 1
	crossedHighWater := len(w.writeBuf) >= w.highWater
	w.mu.Unlock()

	if crossedHighWater {
		w.cond.Broadcast()
	}
	return gen, nil
}

// Flush blocks until generation gen has been durably fsynced,
// triggering an immediate sync if one isn't already pending.
func (w *WAL) Flush(generation uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.syncedGen < generation && !w.closed {
		w.cond.Broadcast()
		w.cond.Wait()
	}
	if w.closed && w.syncedGen < generation {
		return ErrClosed
	}
	return nil
}

// Empty reports whether the log file, as currently synced, has zero
// bytes. Open uses this to skip the replay scan entirely for a brand
// new data directory.
func (w *WAL) Empty() (bool, error) {
	info, err := w.f.Stat()
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}

// syncLoop is woken either by the ticker (below) or by Append/Flush
// broadcasting w.cond; either way it drains the write buffer and
// fsyncs it as one group commit.
func (w *WAL) syncLoop() {
	defer close(w.doneCh)

	tickerDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.mu.Lock()
				w.cond.Broadcast()
				w.mu.Unlock()
			case <-tickerDone:
				return
			}
		}
	}()
	defer close(tickerDone)

	for {
		w.mu.Lock()
		for len(w.writeBuf) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed && len(w.writeBuf) == 0 {
			w.mu.Unlock()
			return
		}
		buf := w.writeBuf
		w.writeBuf = nil
		gen := w.pendingGen + 1
		w.pendingGen = gen
		w.mu.Unlock()

		if len(buf) > 0 {
			if _, err := w.f.Write(buf); err == nil {
				w.f.Sync()
			}
		}

		w.mu.Lock()
		w.syncedGen = gen
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// Replay reads every well-formed record in the log from the
// beginning and invokes apply for each, in order. A truncated or
// checksum-broken tail record stops replay without error — it is
// the torn write of a crash mid-append, not a data integrity fault —
// and the file is truncated at that record, so the bad record and
// everything after it are discarded.
func Replay(dir string, apply func(walRecord) error) (nextSeq uint64, err error) {
	path := filepath.Join(dir, walFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	offset := 0
	for offset < len(data) {
		rec, n, err := decodeWALRecord(data[offset:])
		if err != nil {
			if terr := os.Truncate(path, int64(offset)); terr != nil {
				return 0, terr
			}
			break
		}
		if err := apply(rec); err != nil {
			return 0, err
		}
		if rec.Seq >= nextSeq {
			nextSeq = rec.Seq + 1
		}
		offset += n
	}
	return nextSeq, nil
}

// Close stops the background syncer, flushing any buffered writes
// first, and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	<-w.doneCh
	return w.f.Close()
}
