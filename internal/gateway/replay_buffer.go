package gateway

import (
	"bytes"
	"slices"
	"sync"
)

type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer holds the newest envelopes of one channel, ordered by
// channel_seq, so a dashboard that sees a gap can backfill it through
// /api/missed. Pushes must arrive with increasing seq.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	limit   int
}

func NewReplayBuffer(limit int) *ReplayBuffer {
	if limit <= 0 {
		limit = 200
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, limit), limit: limit}
}

// Push stores a copy of data, evicting the oldest entry past the limit.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) == rb.limit {
		// shift in place so the backing array never grows
		copy(rb.entries, rb.entries[1:])
		rb.entries = rb.entries[:rb.limit-1]
	}
	rb.entries = append(rb.entries, replayEntry{seq: seq, data: bytes.Clone(data)})
}

// Range returns the envelopes with from <= seq <= to, oldest first.
func (rb *ReplayBuffer) Range(from, to int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	start, _ := slices.BinarySearchFunc(rb.entries, from, cmpSeq)
	var out [][]byte
	for _, e := range rb.entries[start:] {
		if e.seq > to {
			break
		}
		out = append(out, e.data)
	}
	return out
}

func cmpSeq(e replayEntry, seq int64) int {
	switch {
	case e.seq < seq:
		return -1
	case e.seq > seq:
		return 1
	}
	return 0
}

// Oldest is the smallest seq still held, 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if len(rb.entries) == 0 {
		return 0
	}
	return rb.entries[0].seq
}

func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
