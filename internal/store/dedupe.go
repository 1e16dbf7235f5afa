package store

import (
	"sync"
	"time"
)

const defaultDedupeTTL = 5 * time.Minute

// Dedupe remembers recently seen keys so replayed webhook deliveries are
// dropped instead of answered twice.
type Dedupe struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDedupe(ttl time.Duration) *Dedupe {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &Dedupe{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

// MarkOnce reports whether key is new. The first call within the TTL window
// records the key and returns true; repeats return false until it expires.
func (d *Dedupe) MarkOnce(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}

	if expiry, ok := d.seen[key]; ok && !now.After(expiry) {
		return false
	}
	d.seen[key] = now.Add(d.ttl)
	return true
}

// Sweep removes expired keys; called by the maintenance cron.
func (d *Dedupe) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}
}
