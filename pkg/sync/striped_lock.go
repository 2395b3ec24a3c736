package sync

import (
	"fmt"
	base "sync"
)

const (
	hashEntriesPerLock = 200
)

// StripedLock consistently maps a key space to a fixed set of locks. The
// escrow flows use one key per (depositor, mint) pair so that operations
// against the same escrow are serialized while unrelated escrows proceed
// concurrently, with a bounded memory footprint.
type StripedLock struct {
	locks    []base.RWMutex
	hashRing *ring
}

// NewStripedLock returns a new StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	ringEntries := make(map[string]interface{})
	for i := 0; i < int(stripes); i++ {
		ringEntries[fmt.Sprintf("lock%d", i)] = i
	}

	return &StripedLock{
		locks:    make([]base.RWMutex, stripes),
		hashRing: newRing(ringEntries, hashEntriesPerLock),
	}
}

// Get returns the lock for a key assembled from the provided parts. The
// same parts always map to the same lock.
func (l *StripedLock) Get(parts ...[]byte) *base.RWMutex {
	var key []byte
	for _, part := range parts {
		key = append(key, part...)
	}

	sharded := l.hashRing.shard(key).(int)
	return &l.locks[sharded]
}
