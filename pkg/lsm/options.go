package lsm

// Options configures an Engine. All fields have documented defaults
// and are filled in by WithDefaults when left zero, matching the
// optional-Config collaborator contract.
type Options struct {
	// Dir is the data directory. The WAL (wal.log), the manifest
	// (MANIFEST) and the SSTable files (L<level>-<id>.sst) live
	// directly in it.
	Dir string

	// MemtableThresholdBytes triggers a memtable rotation once the
	// active memtable's approximate size crosses it.
	MemtableThresholdBytes int64

	// CacheSize is the LRU cache's maximum entry count.
	CacheSize int

	// BloomFPRate is the target false positive rate for per-SSTable
	// bloom filters.
	BloomFPRate float64

	// IndexInterval controls how many data records separate sparse
	// index entries (the first record is always
	// indexed).
	IndexInterval int

	// L0Trigger is the number of L0 SSTables that triggers an L0->L1
	// compaction.
	L0Trigger int

	// LevelBudgets[i] is the maximum total byte size of level i+1
	// before it triggers a compaction into level i+2. Index 0 is L1's
	// budget, matching a decadic ladder.
	LevelBudgets []int64

	// Compression selects the codec applied to each SSTable data
	// record's value bytes: "none" (default) or "snappy". "zstd" is
	// accepted as a name but rejected at Open time since no available
	// dependency in this codebase implements it (see DESIGN.md).
	Compression string

	// WALSyncIntervalMillis is the WAL syncer's timer period.
	WALSyncIntervalMillis int

	// WALBufferHighWaterBytes forces an immediate sync request once
	// the WAL's pending buffer crosses this size.
	WALBufferHighWaterBytes int

	// WriteQueueCapacity bounds the write queue.
	WriteQueueCapacity int
}

const (
	defaultMemtableThreshold   = 8 << 20 // 8 MiB
	defaultCacheSize           = 1000
	defaultBloomFPRate         = 0.01
	defaultIndexInterval       = 16
	defaultL0Trigger           = 4
	defaultWALSyncIntervalMs   = 10
	defaultWALHighWaterBytes   = 256 << 10 // 256 KiB
	defaultWriteQueueCapacity  = 10000
)

func defaultLevelBudgets() []int64 {
	return []int64{
		10 << 20,   // L1: 10 MiB
		100 << 20,  // L2: 100 MiB
		1 << 30,    // L3: 1 GiB
	}
}

// WithDefaults returns a copy of o with every zero-valued field
// filled in.
func (o Options) WithDefaults() Options {
	if o.Dir == "" {
		o.Dir = "./data"
	}
	if o.MemtableThresholdBytes <= 0 {
		o.MemtableThresholdBytes = defaultMemtableThreshold
	}
	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}
	if o.BloomFPRate <= 0 {
		o.BloomFPRate = defaultBloomFPRate
	}
	if o.IndexInterval <= 0 {
		o.IndexInterval = defaultIndexInterval
	}
	if o.L0Trigger <= 0 {
		o.L0Trigger = defaultL0Trigger
	}
	if len(o.LevelBudgets) == 0 {
		o.LevelBudgets = defaultLevelBudgets()
	}
	if o.Compression == "" {
		o.Compression = "none"
	}
	if o.WALSyncIntervalMillis <= 0 {
		o.WALSyncIntervalMillis = defaultWALSyncIntervalMs
	}
	if o.WALBufferHighWaterBytes <= 0 {
		o.WALBufferHighWaterBytes = defaultWALHighWaterBytes
	}
	if o.WriteQueueCapacity <= 0 {
		o.WriteQueueCapacity = defaultWriteQueueCapacity
	}
	return o
}

// levelBudget returns the size budget for level (1-indexed: L1, L2,
// ...), extending the configured ladder by x10 beyond its end.
func (o Options) levelBudget(level int) int64 {
	idx := level - 1
	if idx < len(o.LevelBudgets) {
		return o.LevelBudgets[idx]
	}
	budget := o.LevelBudgets[len(o.LevelBudgets)-1]
	for i := len(o.LevelBudgets); i <= idx; i++ {
		budget *= 10
	}
	return budget
}
