package colormeter

import "sync"

// One day of readings at RECORD_INTERVAL.
const HISTORY_SIZE = 2880

// History keeps the most recent readings in memory. Readings are never
// written to disk.
type History struct {
	mu       sync.Mutex
	readings []Reading
	next     int
	full     bool
}

func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{readings: make([]Reading, size)}
}

// Add stores r, overwriting the oldest reading once the buffer is full.
func (h *History) Add(r Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readings[h.next] = r
	h.next = (h.next + 1) % len(h.readings)
	if h.next == 0 {
		h.full = true
	}
}

func (h *History) Latest() (Reading, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full && h.next == 0 {
		return Reading{}, false
	}
	i := (h.next - 1 + len(h.readings)) % len(h.readings)
	return h.readings[i], true
}

// All returns the stored readings, oldest first.
func (h *History) All() []Reading {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Reading(nil), h.readings[:h.next]...)
	}
	out := make([]Reading, 0, len(h.readings))
	out = append(out, h.readings[h.next:]...)
	return append(out, h.readings[:h.next]...)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.full = false
}
