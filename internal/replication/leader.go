package replication

import (
	"context"

	"github.com/lsmkv/lsmkv/internal/obs"
	"github.com/lsmkv/lsmkv/pkg/lsm"
)

// Leader ships every batch the engine commits to its configured
// transports. Both transports are best-effort: a follower that is
// down or hasn't caught up simply misses entries until the next
// batch, there is no replay-from-seq recovery path.
type Leader struct {
	sender      *Sender
	broadcaster *Broadcaster
	log         *obs.Logger
}

// NewLeader wires sender and/or broadcaster (either may be nil) to
// engine's commit hook.
func NewLeader(engine *lsm.Engine, sender *Sender, broadcaster *Broadcaster) *Leader {
	l := &Leader{sender: sender, broadcaster: broadcaster, log: obs.New("replication")}
	engine.SetCommitHook(l.onCommit)
	return l
}

func (l *Leader) onCommit(records []lsm.CommitRecord) {
	if len(records) == 0 {
		return
	}
	entries := make([]LogEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, LogEntry{Seq: r.Seq, Op: r.Kind, Key: r.Key, Value: r.Value})
	}

	if l.sender != nil {
		go func() {
			if err := l.sender.Ship(context.Background(), entries); err != nil {
				l.log.Errorf("ship batch: %v", err)
			}
		}()
	}
	if l.broadcaster != nil {
		go func() {
			if err := l.broadcaster.Publish(entries); err != nil {
				l.log.Errorf("publish batch: %v", err)
			}
		}()
	}
}
