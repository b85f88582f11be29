package kafka

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker keeps each partition's fetched offsets in order and only
// releases a commit up to the lowest offset that is not yet finished. A
// message left unfinished pins its partition, so the group redelivers it
// after a restart or rebalance.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[partitionKey]*partitionOffsets
}

type partitionOffsets struct {
	order []int64
	done  map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[partitionKey]*partitionOffsets)}
}

// fetched registers km as in flight. An offset at or below the last one seen
// means the partition was rewound and its history is reset.
func (t *offsetTracker) fetched(km kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := partitionKey{km.Topic, km.Partition}
	p, ok := t.parts[k]
	if !ok || (len(p.order) > 0 && km.Offset <= p.order[len(p.order)-1]) {
		p = &partitionOffsets{done: make(map[int64]bool)}
		t.parts[k] = p
	}
	p.order = append(p.order, km.Offset)
}

// finished marks km done and returns the message to commit when the
// contiguous finished prefix of its partition advanced.
func (t *offsetTracker) finished(km kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[partitionKey{km.Topic, km.Partition}]
	if !ok {
		return km, true
	}
	p.done[km.Offset] = true

	n := 0
	for n < len(p.order) && p.done[p.order[n]] {
		delete(p.done, p.order[n])
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	last := p.order[n-1]
	p.order = p.order[n:]
	return kafka.Message{Topic: km.Topic, Partition: km.Partition, Offset: last}, true
}

// blocked returns the lowest unfinished offset of km's partition.
func (t *offsetTracker) blocked(km kafka.Message) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[partitionKey{km.Topic, km.Partition}]
	if !ok || len(p.order) == 0 {
		return 0, false
	}
	return p.order[0], true
}
