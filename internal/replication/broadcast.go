package replication

import (
	"context"
	"errors"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
)

const replicationTopic = "lsmkv.replication"

// Broadcaster fans committed batches out over a PUB socket. This is
// an alternative to Sender's point-to-point HTTP push: followers
// subscribe rather than the leader tracking each one's address.
type Broadcaster struct {
	sock zmq4.Socket
}

// NewBroadcaster opens a PUB socket bound to addr (e.g. "tcp://*:5556").
func NewBroadcaster(ctx context.Context, addr string) (*Broadcaster, error) {
	sock := zmq4.NewPub(ctx,
		zmq4.WithAutomaticReconnect(true),
		zmq4.WithDialerRetry(5*time.Second),
	)
	if err := sock.Listen(addr); err != nil {
		return nil, err
	}
	return &Broadcaster{sock: sock}, nil
}

// Publish broadcasts entries under the replication topic. Subscribers
// that are offline simply miss the batch; there is no replay queue.
func (b *Broadcaster) Publish(entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := Batch{BatchID: uuid.NewString(), Entries: entries}
	payload, err := batch.Marshal()
	if err != nil {
		return err
	}
	msg := zmq4.NewMsgFrom([]byte(replicationTopic), payload)
	return b.sock.Send(msg)
}

// Close releases the PUB socket.
func (b *Broadcaster) Close() error { return b.sock.Close() }

// Subscriber receives batches published by a Broadcaster.
type Subscriber struct {
	sock   zmq4.Socket
	batch  chan Batch
	stopCh chan struct{}
}

// NewSubscriber dials a Broadcaster at addr and starts receiving in
// the background; call Batches to consume them.
func NewSubscriber(ctx context.Context, addr string) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx,
		zmq4.WithAutomaticReconnect(true),
		zmq4.WithDialerRetry(5*time.Second),
	)
	if err := sock.SetOption(zmq4.OptionSubscribe, replicationTopic); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, err
	}

	s := &Subscriber{sock: sock, batch: make(chan Batch, 64), stopCh: make(chan struct{})}
	go s.recvLoop()
	return s, nil
}

func (s *Subscriber) recvLoop() {
	defer close(s.batch)
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if errors.Is(err, zmq4.ErrClosedConn) {
				return
			}
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}
		if len(msg.Frames) < 2 {
			continue
		}
		batch, err := UnmarshalBatch(msg.Frames[1])
		if err != nil {
			continue
		}
		select {
		case s.batch <- batch:
		case <-s.stopCh:
			return
		}
	}
}

// Batches returns the channel of received batches, closed once the
// subscriber is closed.
func (s *Subscriber) Batches() <-chan Batch { return s.batch }

// Close stops the receive loop and releases the SUB socket.
func (s *Subscriber) Close() error {
	close(s.stopCh)
	return s.sock.Close()
}
