package service

import (
	"container/list"
	"sync"
)

const defaultHandledCapacity = 4096

// handledJobs is a bounded set of keys that have already been acted on. Once full,
// the least recently marked key is evicted. Safe for concurrent use.
type handledJobs struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List // front = most recently marked
	items map[string]*list.Element
}

func newHandledJobs(capacity int) *handledJobs {
	if capacity <= 0 {
		capacity = defaultHandledCapacity
	}
	return &handledJobs{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, min(capacity, 256)),
	}
}

// markFirst records key and reports whether it was not already present.
func (h *handledJobs) markFirst(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if el, ok := h.items[key]; ok {
		h.ll.MoveToFront(el)
		return false
	}
	h.items[key] = h.ll.PushFront(key)
	for h.ll.Len() > h.cap {
		oldest := h.ll.Back()
		h.ll.Remove(oldest)
		if k, ok := oldest.Value.(string); ok {
			delete(h.items, k)
		}
	}
	return true
}

// forget removes key so it can be handled again.
func (h *handledJobs) forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if el, ok := h.items[key]; ok {
		h.ll.Remove(el)
		delete(h.items, key)
	}
}

func (h *handledJobs) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ll.Len()
}
