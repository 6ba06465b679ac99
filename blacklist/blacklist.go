// Package blacklist rate-limits repeated authentication failures per peer
// address with an exponentially growing backoff, backed directly by
// patrickmn/go-cache rather than the cacher.Cacher interface: strike
// tracking is a write-heavy, per-address counter, not a fetch-and-cache
// workload, so the GetOrFetch shape doesn't fit it.
package blacklist

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Config controls the backoff curve. Strikes below Threshold never block;
// at or above it, each additional strike doubles the block duration,
// starting at BaseBackoff and capped at MaxBackoff.
type Config struct {
	Threshold   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

type record struct {
	strikes      int
	blockedUntil time.Time
}

// Blacklist tracks per-address authentication strikes and the resulting
// block window, if any.
type Blacklist struct {
	cfg   Config
	cache *cache.Cache
	mu    sync.Mutex
}

// New creates a Blacklist. Records expire from the underlying cache after
// MaxBackoff of inactivity, so a peer that stops trying eventually falls out
// of memory instead of accumulating forever.
func New(cfg Config) *Blacklist {
	return &Blacklist{
		cfg:   cfg,
		cache: cache.New(cfg.MaxBackoff, cfg.MaxBackoff),
	}
}

// IsBlackmarked reports whether addr is currently within its block window.
func (b *Blacklist) IsBlackmarked(addr string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.get(addr)
	if !ok {
		return false
	}
	return now.Before(rec.blockedUntil)
}

// AddBlackmark records an authentication failure for addr and returns the
// resulting block duration (zero if the strike count is still below
// Threshold).
func (b *Blacklist) AddBlackmark(addr string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, _ := b.get(addr)
	rec.strikes++

	if rec.strikes < b.cfg.Threshold {
		b.cache.Set(addr, rec, cache.DefaultExpiration)
		return 0
	}

	backoffStrikes := rec.strikes - b.cfg.Threshold
	backoff := b.cfg.BaseBackoff << backoffStrikes
	if backoff <= 0 || backoff > b.cfg.MaxBackoff {
		backoff = b.cfg.MaxBackoff
	}

	rec.blockedUntil = now.Add(backoff)
	b.cache.Set(addr, rec, cache.DefaultExpiration)
	return backoff
}

// ClearBlackmark wipes addr's entire strike history, matching a successful
// authentication clearing the record outright rather than just the current
// block window.
func (b *Blacklist) ClearBlackmark(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Delete(addr)
}

func (b *Blacklist) get(addr string) (record, bool) {
	val, found := b.cache.Get(addr)
	if !found {
		return record{}, false
	}
	rec, ok := val.(record)
	return rec, ok
}
