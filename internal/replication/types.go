// Package replication ships committed writes from a leader to
// followers. There is no leader election or consensus here: a
// leader is whatever node an operator designates.
package replication

import (
	"encoding/json"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

// Role is a node's replication role.
type Role int

const (
	RoleLeader Role = iota
	RoleFollower
)

// LogEntry is one committed write, identified by the engine's own
// sequence number rather than a Raft term/index pair, since no
// consensus protocol assigns those here.
type LogEntry struct {
	Seq   uint64 `json:"seq"`
	Op    lsm.Op `json:"op"`
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// Batch is a batch id (for log correlation across leader and
// followers) plus the entries it carries.
type Batch struct {
	BatchID string     `json:"batch_id"`
	Entries []LogEntry `json:"entries"`
}

// Marshal serializes a Batch to JSON, the wire format both the resty
// push sender and the zmq4 broadcaster use.
func (b Batch) Marshal() ([]byte, error) { return json.Marshal(b) }

// UnmarshalBatch parses a Batch from JSON.
func UnmarshalBatch(data []byte) (Batch, error) {
	var b Batch
	err := json.Unmarshal(data, &b)
	return b, err
}

// PeerInfo is a follower's reachable address. There's no persistent
// connection state to track since both transports below are
// connectionless or self-reconnecting.
type PeerInfo struct {
	HTTPAddr string
	PubAddr  string
}

// Config describes a node's replication role and peer set.
type Config struct {
	NodeID uint32
	Role   Role
	Peers  []PeerInfo
}
