package lsm

import (
	"bytes"
	"container/heap"
)

// mergeSource is one SSTable's entries contributing to a k-way merge,
// consumed in on-disk (already sorted) order.
type mergeSource struct {
	entries []InternalKeyValue
	pos     int
}

func (s *mergeSource) peek() (InternalKeyValue, bool) {
	if s.pos >= len(s.entries) {
		return InternalKeyValue{}, false
	}
	return s.entries[s.pos], true
}

// mergeHeap is a min-heap over the current head of each mergeSource,
// ordered the same way InternalKey sorts a memtable: user key
// ascending, then seq descending, so the newest version of a key
// surfaces first.
type mergeHeap []*mergeSource

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	a, _ := h[i].peek()
	b, _ := h[j].peek()
	if c := bytes.Compare(a.Key.UserKey, b.Key.UserKey); c != 0 {
		return c < 0
	}
	return a.Key.Seq > b.Key.Seq
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeSource)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeRuns k-way merges entries already sorted within each run,
// keeping only the newest version of each user key (tombstones
// included — the caller decides whether to drop them) and discarding
// superseded older versions entirely, since compaction's whole point
// is to reclaim that space.
func mergeRuns(runs [][]InternalKeyValue, dropTombstones bool) []InternalKeyValue {
	h := make(mergeHeap, 0, len(runs))
	for _, run := range runs {
		if len(run) > 0 {
			h = append(h, &mergeSource{entries: run})
		}
	}
	heap.Init(&h)

	var out []InternalKeyValue
	var lastKey []byte
	haveLastKey := false

	for h.Len() > 0 {
		src := h[0]
		kv, _ := src.peek()
		src.pos++
		if src.pos < len(src.entries) {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}

		if haveLastKey && bytes.Equal(kv.Key.UserKey, lastKey) {
			continue // superseded by a newer version already emitted
		}
		lastKey = kv.Key.UserKey
		haveLastKey = true

		if dropTombstones && kv.Key.Kind == KindDel {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// CompactionPlan names the inputs and target level of one compaction
// round.
type CompactionPlan struct {
	SourceLevel int
	TargetLevel int
	Inputs      []SSTableMeta // from SourceLevel
	Overlapping []SSTableMeta // from TargetLevel, key-range intersecting Inputs
}

// PlanL0Compaction selects every L0 table once L0Trigger is reached
// (L0 tables overlap arbitrarily, so all of them must merge together)
// plus every L1 table whose range overlaps any of them.
func PlanL0Compaction(v *TableVersion, opts Options) (CompactionPlan, bool) {
	if len(v.Levels) == 0 || len(v.Levels[0]) < opts.L0Trigger {
		return CompactionPlan{}, false
	}
	inputs := append([]SSTableMeta(nil), v.Levels[0]...)

	minKey, maxKey := rangeOf(inputs)
	var overlapping []SSTableMeta
	if len(v.Levels) > 1 {
		overlapping = overlapsRange(v.Levels[1], minKey, maxKey)
	}

	return CompactionPlan{SourceLevel: 0, TargetLevel: 1, Inputs: inputs, Overlapping: overlapping}, true
}

// PlanLevelCompaction checks whether level's total size exceeds its
// budget and, if so, picks the table with the lowest MinKey in that
// level plus every
// table in level+1 whose range overlaps it — the standard leveled
// "pick one, merge its overlap set" strategy.
func PlanLevelCompaction(v *TableVersion, level int, opts Options) (CompactionPlan, bool) {
	if level >= len(v.Levels) || len(v.Levels[level]) == 0 {
		return CompactionPlan{}, false
	}
	if v.levelSize(level) <= opts.levelBudget(level) {
		return CompactionPlan{}, false
	}

	victim := v.Levels[level][0]
	for _, m := range v.Levels[level] {
		if bytes.Compare(m.MinKey, victim.MinKey) < 0 {
			victim = m
		}
	}

	var overlapping []SSTableMeta
	if level+1 < len(v.Levels) {
		overlapping = overlapsRange(v.Levels[level+1], victim.MinKey, victim.MaxKey)
	}

	return CompactionPlan{
		SourceLevel: level,
		TargetLevel: level + 1,
		Inputs:      []SSTableMeta{victim},
		Overlapping: overlapping,
	}, true
}

func rangeOf(metas []SSTableMeta) (min, max []byte) {
	for i, m := range metas {
		if i == 0 || bytes.Compare(m.MinKey, min) < 0 {
			min = m.MinKey
		}
		if i == 0 || bytes.Compare(m.MaxKey, max) > 0 {
			max = m.MaxKey
		}
	}
	return min, max
}

func overlapsRange(metas []SSTableMeta, min, max []byte) []SSTableMeta {
	var out []SSTableMeta
	for _, m := range metas {
		if bytes.Compare(m.MaxKey, min) < 0 || bytes.Compare(m.MinKey, max) > 0 {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RunCompaction reads every input table's entries, merges them, and
// writes the result as one or more new SSTables in plan.TargetLevel.
// Tombstones are kept whenever the merge set might not include every
// copy of the key anywhere in the tree (the conservative rule: only
// drop a tombstone once it has reached the last level, since an
// earlier-dropped tombstone could let a stale value in an
// untouched lower level resurface).
func RunCompaction(plan CompactionPlan, dir string, nextTableID uint64, opts Options, isLastLevel bool) ([]SSTableMeta, []InternalKeyValue, error) {
	var runs [][]InternalKeyValue
	for _, m := range append(append([]SSTableMeta(nil), plan.Inputs...), plan.Overlapping...) {
		r, err := OpenSSTable(m, opts.Compression)
		if err != nil {
			return nil, nil, err
		}
		entries, err := r.AllEntries()
		r.Close()
		if err != nil {
			return nil, nil, err
		}
		runs = append(runs, entries)
	}

	merged := mergeRuns(runs, isLastLevel)
	if len(merged) == 0 {
		return nil, nil, nil
	}

	const maxEntriesPerTable = 50000
	var outputs []SSTableMeta
	id := nextTableID
	for start := 0; start < len(merged); start += maxEntriesPerTable {
		end := start + maxEntriesPerTable
		if end > len(merged) {
			end = len(merged)
		}
		meta, err := WriteSSTable(dir, plan.TargetLevel, id, merged[start:end], opts)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, meta)
		id++
	}
	return outputs, merged, nil
}
