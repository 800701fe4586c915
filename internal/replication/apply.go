package replication

import (
	"encoding/json"
	"net/http"

	"github.com/lsmkv/lsmkv/internal/obs"
	"github.com/lsmkv/lsmkv/pkg/lsm"
)

// Applier is satisfied by *lsm.Engine; followers apply each replayed
// entry the same way a local client write would.
type Applier interface {
	Put(key, value []byte) error
	Delete(key []byte) (bool, error)
}

// ApplyHandler returns an http.HandlerFunc for a follower's apply
// endpoint: it decodes a Batch and replays each entry against engine
// in order. Entries are idempotent to re-apply (a PUT overwrites, a
// DELETE on an absent key is a no-op), so at-least-once delivery from
// Sender's retries is safe.
func ApplyHandler(engine Applier, log *obs.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var batch Batch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, entry := range batch.Entries {
			if err := applyEntry(engine, entry); err != nil {
				log.Errorf("batch %s: apply seq %d: %v", batch.BatchID, entry.Seq, err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ApplyFromSubscriber drains a Subscriber's batch channel, applying
// each one against engine, until the channel is closed.
func ApplyFromSubscriber(sub *Subscriber, engine Applier, log *obs.Logger) {
	for batch := range sub.Batches() {
		for _, entry := range batch.Entries {
			if err := applyEntry(engine, entry); err != nil {
				log.Errorf("batch %s: apply seq %d: %v", batch.BatchID, entry.Seq, err)
			}
		}
	}
}

func applyEntry(engine Applier, entry LogEntry) error {
	switch entry.Op {
	case lsm.KindPut:
		return engine.Put(entry.Key, entry.Value)
	case lsm.KindDel:
		_, err := engine.Delete(entry.Key)
		return err
	}
	return nil
}
