// Package keygen allocates target engine keys.
//
// A key carries its partition in 13 bits above a 50 bit per-partition
// counter. The sign bit stays clear so keys are always positive.
package keygen

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	// PartitionBits is the width of the partition id inside a key.
	PartitionBits = 13
	// CounterBits is the width of the per-partition counter.
	CounterBits = 64 - PartitionBits - 1

	MaxPartitionID = 1<<PartitionBits - 1
	MaxCounter     = 1<<CounterBits - 1
)

// ErrExhausted is returned when a partition counter has no keys left.
var ErrExhausted = errors.New("key space exhausted")

// Allocator hands out collision-free target keys.
type Allocator interface {
	Next() (int64, error)
}

// Encode combines a partition id and a counter into a key.
func Encode(partitionID int, counter int64) int64 {
	return int64(partitionID)<<CounterBits | counter&MaxCounter
}

// Decode splits a key into its partition id and counter.
func Decode(key int64) (int, int64) {
	return int(key >> CounterBits), key & MaxCounter
}

// Sequence allocates keys from a monotonically increasing counter. It is the
// deterministic allocator used by tests and dry runs.
type Sequence struct {
	mu          sync.Mutex
	partitionID int
	next        int64
}

// NewSequence returns a Sequence whose first key has the given counter value.
func NewSequence(partitionID int, start int64) (*Sequence, error) {
	if err := checkPartition(partitionID); err != nil {
		return nil, err
	}
	if start < 0 || start > MaxCounter {
		return nil, fmt.Errorf("counter start %d out of range", start)
	}
	return &Sequence{partitionID: partitionID, next: start}, nil
}

// Next implements Allocator.
func (s *Sequence) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next > MaxCounter {
		return 0, fmt.Errorf("%w: partition %d", ErrExhausted, s.partitionID)
	}
	key := Encode(s.partitionID, s.next)
	s.next++
	return key, nil
}

// Partitioned allocates keys from a counter that starts at a random offset,
// so that two runs against the same target are unlikely to overlap while keys
// within one run never collide.
type Partitioned struct {
	seq *Sequence
}

// randomWindow keeps the random start in the lowest 1/2048th of the counter range.
const randomWindow = MaxCounter >> 11

// NewPartitioned seeds a Partitioned allocator from crypto/rand.
func NewPartitioned(partitionID int) (*Partitioned, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("failed to seed key allocator: %w", err)
	}
	start := int64(binary.BigEndian.Uint64(buf[:]) % uint64(randomWindow))
	// Counter zero is never handed out.
	seq, err := NewSequence(partitionID, start+1)
	if err != nil {
		return nil, err
	}
	return &Partitioned{seq: seq}, nil
}

// Next implements Allocator.
func (p *Partitioned) Next() (int64, error) {
	return p.seq.Next()
}

func checkPartition(partitionID int) error {
	if partitionID < 1 || partitionID > MaxPartitionID {
		return fmt.Errorf("partition id %d out of range [1, %d]", partitionID, MaxPartitionID)
	}
	return nil
}
