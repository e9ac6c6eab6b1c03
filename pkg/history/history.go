// Package history remembers recently decoded payloads so continuous
// scanning does not report the same code over and over while it stays in
// front of the camera.
package history

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"scanqr/pkg/log"
)

// History is a bounded set of recent payloads with a cooldown. It is safe
// for concurrent use.
type History struct {
	cooldown time.Duration
	cache    *lru.Cache[string, time.Time]
	now      func() time.Time

	mu sync.Mutex
}

// New creates a history holding up to size payloads. A payload is a
// duplicate if it was last seen less than cooldown ago.
func New(size int, cooldown time.Duration) (*History, error) {
	cache, err := lru.NewWithEvict(size, func(payload string, _ time.Time) {
		log.Trace("History evicted %q", payload)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history cache: %w", err)
	}
	return &History{cooldown: cooldown, cache: cache, now: time.Now}, nil
}

// Observe records payload and reports whether it is new, meaning it was not
// seen within the cooldown. Every sighting refreshes the cooldown, so a
// code held still is reported only once.
func (h *History) Observe(payload string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	last, ok := h.cache.Get(payload)
	h.cache.Add(payload, now)
	return !ok || now.Sub(last) >= h.cooldown
}

// Forget drops payload so its next sighting counts as new.
func (h *History) Forget(payload string) {
	h.cache.Remove(payload)
}

// Recent returns the remembered payloads, oldest first.
func (h *History) Recent() []string {
	return h.cache.Keys()
}

// Len returns the number of remembered payloads.
func (h *History) Len() int {
	return h.cache.Len()
}
