package frame

import "sync"

// Slot is a single-element, latest-wins handoff between one producer and one
// consumer. Publish never blocks and never queues: an unconsumed buffer is
// replaced and counted as dropped.
//
// The mutex only guards the pointer swap and counters; it is never held
// across I/O or GPU calls.
type Slot struct {
	mu  sync.Mutex
	buf *Buffer

	generation   uint64 // bumped on every Publish
	lastConsumed uint64 // generation handed out by the last TryConsume

	publishes uint64
	consumes  uint64
	dropped   uint64
}

// SlotStats is a snapshot of slot counters.
type SlotStats struct {
	Generation   uint64 `json:"generation"`
	LastConsumed uint64 `json:"last_consumed"`
	Publishes    uint64 `json:"publishes"`
	Consumes     uint64 `json:"consumes"`
	Dropped      uint64 `json:"dropped"`
	Pending      bool   `json:"pending"`
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Publish stores buf, replacing any resident buffer, and returns the new
// generation. A nil buf is ignored and returns the current generation.
func (s *Slot) Publish(buf *Buffer) uint64 {
	if buf == nil {
		return s.Generation()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf != nil {
		s.dropped++
	}
	s.buf = buf
	s.generation++
	s.publishes++
	return s.generation
}

// TryConsume takes the resident buffer, leaving the slot empty. It returns
// ok=false when nothing was published since the last consume.
func (s *Slot) TryConsume() (buf *Buffer, generation uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf == nil {
		return nil, s.lastConsumed, false
	}

	buf = s.buf
	s.buf = nil
	s.lastConsumed = s.generation
	s.consumes++
	return buf, s.generation, true
}

// Generation returns the generation of the most recent publish.
func (s *Slot) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Stats returns a copy of the slot counters.
func (s *Slot) Stats() SlotStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStats{
		Generation:   s.generation,
		LastConsumed: s.lastConsumed,
		Publishes:    s.publishes,
		Consumes:     s.consumes,
		Dropped:      s.dropped,
		Pending:      s.buf != nil,
	}
}
