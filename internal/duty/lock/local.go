// Package lock provides per-duty mutual exclusion for workflow transitions.
package lock

import (
	"context"
	"fmt"

	id "dutyflow/pkg/domain"
	"dutyflow/pkg/platform/sentinel"
)

const numShards = 128

// Local serializes transitions on the same duty within one process. Duties hash
// onto a fixed set of shards; two duties may share a shard, never a global lock.
type Local struct {
	shards [numShards]chan struct{}
}

func NewLocal() *Local {
	l := &Local{}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock blocks until the duty's shard is free or ctx is done.
func (l *Local) Lock(ctx context.Context, dutyID id.DutyID) (func(), error) {
	shard := l.shards[shardFor(dutyID.String())]
	select {
	case shard <- struct{}{}:
		return func() { <-shard }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock duty %s: %w", dutyID, sentinel.ErrLocked)
	}
}

// shardFor uses FNV-1a.
func shardFor(s string) int {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return int(h % numShards)
}
