// Package hotkeys counts key accesses made by commands and reports the most
// frequently touched keys.
package hotkeys

import (
	"container/heap"
	"sync"
	"time"
)

// Entry is one key and its decayed access count.
type Entry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int64
	topN   int

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a tracker reporting at most topN keys by default. Every window
// all counters are halved so that old traffic fades; a zero window keeps
// counts forever.
func New(topN int, window time.Duration) *Tracker {
	if topN <= 0 {
		topN = 100
	}
	t := &Tracker{
		counts: make(map[string]int64, topN*2),
		topN:   topN,
		stop:   make(chan struct{}),
	}
	if window > 0 {
		go t.decayLoop(window)
	}
	return t
}

// Record counts one access for each key.
func (t *Tracker) Record(keys ...string) {
	if len(keys) == 0 {
		return
	}
	t.mu.Lock()
	for _, k := range keys {
		t.counts[k]++
	}
	t.mu.Unlock()
}

// Top returns up to n keys ordered by descending count. n <= 0 uses the
// tracker's default.
func (t *Tracker) Top(n int) []Entry {
	if n <= 0 {
		n = t.topN
	}
	t.mu.Lock()
	h := make(entryHeap, 0, n)
	for key, cnt := range t.counts {
		e := Entry{Key: key, Count: cnt}
		if h.Len() < n {
			heap.Push(&h, e)
		} else if h[0].Count < e.Count {
			h[0] = e
			heap.Fix(&h, 0)
		}
	}
	t.mu.Unlock()

	result := make([]Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(Entry)
	}
	return result
}

// Reset drops all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.counts = make(map[string]int64, t.topN*2)
	t.mu.Unlock()
}

// Size returns the number of tracked keys.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

// Close stops the decay goroutine.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Tracker) decayLoop(window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.decay()
		}
	}
}

func (t *Tracker) decay() {
	t.mu.Lock()
	for key, cnt := range t.counts {
		if cnt /= 2; cnt == 0 {
			delete(t.counts, key)
		} else {
			t.counts[key] = cnt
		}
	}
	t.mu.Unlock()
}

// entryHeap is a min-heap on Count used for top-N selection.
type entryHeap []Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].Count < h[j].Count }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
