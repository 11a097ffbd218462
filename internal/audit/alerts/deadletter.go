package alerts

import (
	"sync"
	"time"
)

// DeadLetter is an alert that could not be delivered, kept for operator
// inspection.
type DeadLetter struct {
	Alert    Alert     `json:"alert"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// deadLetterBuffer is a bounded, thread-safe ring of failed alerts. When
// full, the oldest entries are dropped to make room for new ones.
type deadLetterBuffer struct {
	mu       sync.Mutex
	entries  []DeadLetter
	head     int
	tail     int
	count    int
	capacity int
	dropped  int64
}

func newDeadLetterBuffer(capacity int) *deadLetterBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &deadLetterBuffer{
		entries:  make([]DeadLetter, capacity),
		capacity: capacity,
	}
}

func (b *deadLetterBuffer) Add(entry DeadLetter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
	}

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// Snapshot returns the buffered entries, oldest first.
func (b *deadLetterBuffer) Snapshot() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]DeadLetter, b.count)
	for i := range b.count {
		out[i] = b.entries[(b.tail+i)%b.capacity]
	}
	return out
}

func (b *deadLetterBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
