package replication

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsmkv/lsmkv/internal/obs"
	"github.com/lsmkv/lsmkv/pkg/lsm"
)

func openTestEngine(t *testing.T) *lsm.Engine {
	engine, err := lsm.Open(lsm.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func TestApplyHandlerAppliesPutAndDelete(t *testing.T) {
	engine := openTestEngine(t)
	require.NoError(t, engine.Put([]byte("a"), []byte("old")))

	batch := Batch{
		BatchID: "b1",
		Entries: []LogEntry{
			{Seq: 1, Op: lsm.KindPut, Key: []byte("a"), Value: []byte("new")},
			{Seq: 2, Op: lsm.KindDel, Key: []byte("a")},
			{Seq: 3, Op: lsm.KindPut, Key: []byte("c"), Value: []byte("3")},
		},
	}
	body, err := batch.Marshal()
	require.NoError(t, err)

	handler := ApplyHandler(engine, obs.New("test"))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/apply", bytes.NewReader(body))
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	_, ok, err := engine.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	val, ok, err := engine.Get([]byte("c"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("3"), val)
}

func TestApplyHandlerRejectsNonPost(t *testing.T) {
	engine := openTestEngine(t)
	handler := ApplyHandler(engine, obs.New("test"))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/apply", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestApplyHandlerRejectsMalformedBody(t *testing.T) {
	engine := openTestEngine(t)
	handler := ApplyHandler(engine, obs.New("test"))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/apply", bytes.NewReader([]byte("not json")))
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyFromSubscriberDrainsUntilClosed(t *testing.T) {
	engine := openTestEngine(t)

	sub := &Subscriber{batch: make(chan Batch, 4), stopCh: make(chan struct{})}
	sub.batch <- Batch{Entries: []LogEntry{{Op: lsm.KindPut, Key: []byte("x"), Value: []byte("1")}}}
	close(sub.batch)

	done := make(chan struct{})
	go func() {
		ApplyFromSubscriber(sub, engine, obs.New("test"))
		close(done)
	}()
	<-done

	val, ok, err := engine.Get([]byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), val)
}

func TestBatchJSONShapeUsesSnakeCaseBatchID(t *testing.T) {
	batch := Batch{BatchID: "abc", Entries: nil}
	data, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"batch_id":"abc"`)
}
