package replication

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func TestLeaderShipsOnCommit(t *testing.T) {
	applied := make(chan Batch, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b Batch
		_ = json.NewDecoder(r.Body).Decode(&b)
		applied <- b
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine, err := lsm.Open(lsm.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer engine.Close()

	sender := NewSender([]string{srv.URL})
	NewLeader(engine, sender, nil)

	require.NoError(t, engine.Put([]byte("a"), []byte("1")))

	select {
	case b := <-applied:
		require.Len(t, b.Entries, 1)
		require.Equal(t, []byte("a"), b.Entries[0].Key)
	case <-time.After(2 * time.Second):
		t.Fatal("leader never shipped committed batch to follower")
	}
}

func TestLeaderWithNoTransportsIsNoOp(t *testing.T) {
	engine, err := lsm.Open(lsm.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer engine.Close()

	NewLeader(engine, nil, nil)
	require.NoError(t, engine.Put([]byte("a"), []byte("1")))
}
