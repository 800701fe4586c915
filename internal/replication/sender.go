package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Sender pushes committed batches to a follower's HTTP apply
// endpoint using a resty.Client. This is the default transport;
// Broadcaster below is the PUB/SUB alternative.
type Sender struct {
	client *resty.Client
	peers  []string // "http://host:port/apply" per follower
}

// NewSender builds a Sender that pushes to the given follower apply
// URLs, retrying each push a few times before giving up on that peer.
func NewSender(peerApplyURLs []string) *Sender {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond)
	return &Sender{client: client, peers: peerApplyURLs}
}

// Ship sends entries to every configured follower, tagging the batch
// with a fresh id so followers can dedupe retried deliveries. It
// returns the first error encountered but still attempts every peer.
func (s *Sender) Ship(ctx context.Context, entries []LogEntry) error {
	if len(entries) == 0 || len(s.peers) == 0 {
		return nil
	}
	batch := Batch{BatchID: uuid.NewString(), Entries: entries}

	var firstErr error
	for _, peer := range s.peers {
		resp, err := s.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(batch).
			Post(peer)
		if err == nil && resp.IsError() {
			err = fmt.Errorf("replication push to %s: %s", peer, resp.Status())
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
