package replication

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func TestSenderShipPostsBatchToEveryPeer(t *testing.T) {
	var received int32
	var gotBatch Batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		var b Batch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		gotBatch = b
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSender([]string{srv.URL, srv.URL})
	entries := []LogEntry{{Seq: 1, Op: lsm.KindPut, Key: []byte("a"), Value: []byte("1")}}

	err := sender.Ship(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&received))
	require.Len(t, gotBatch.Entries, 1)
	assert.Equal(t, []byte("a"), gotBatch.Entries[0].Key)
}

func TestSenderShipSkipsEmptyEntries(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
	}))
	defer srv.Close()

	sender := NewSender([]string{srv.URL})
	err := sender.Ship(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&received))
}

func TestSenderShipReturnsErrorOnPeerFailureButTriesAllPeers(t *testing.T) {
	var received int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	sender := NewSender([]string{bad.URL, good.URL})
	err := sender.Ship(context.Background(), []LogEntry{{Seq: 1, Op: lsm.KindPut, Key: []byte("a"), Value: []byte("1")}})

	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}
