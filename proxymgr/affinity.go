package proxymgr

import (
	"sync"
	"time"
)

// affinityEntry remembers the last proxy that worked for a carrier.
type affinityEntry struct {
	proxyID   int64
	expiresAt time.Time
}

// Affinity remembers, per carrier, which proxy last worked, so repeat
// fetches for the same carrier prefer a proxy already known to clear
// that carrier's defenses instead of paying the trial cost again.
// Directly grounded on the teacher's engine.DomainMemory: a sync.Map of
// TTL'd entries pruned by a background ticker, generalized from
// "domain -> engine name" to "carrier -> proxy id".
type Affinity struct {
	store sync.Map // carrierID (string) -> *affinityEntry
	ttl   time.Duration
	done  chan struct{}
}

// NewAffinity starts the background pruning loop; call Stop on shutdown.
func NewAffinity(ttl time.Duration) *Affinity {
	a := &Affinity{ttl: ttl, done: make(chan struct{})}
	go a.cleanupLoop()
	return a
}

// Get returns the remembered proxy id for carrierID, or (0, false) if
// there is none or it has expired.
func (a *Affinity) Get(carrierID string) (int64, bool) {
	v, ok := a.store.Load(carrierID)
	if !ok {
		return 0, false
	}
	entry := v.(*affinityEntry)
	if time.Now().After(entry.expiresAt) {
		a.store.Delete(carrierID)
		return 0, false
	}
	return entry.proxyID, true
}

// Set records that proxyID last worked for carrierID.
func (a *Affinity) Set(carrierID string, proxyID int64) {
	a.store.Store(carrierID, &affinityEntry{proxyID: proxyID, expiresAt: time.Now().Add(a.ttl)})
}

// Delete forgets the remembered proxy for carrierID, e.g. after it fails.
func (a *Affinity) Delete(carrierID string) {
	a.store.Delete(carrierID)
}

// Stop terminates the background cleanup goroutine.
func (a *Affinity) Stop() {
	close(a.done)
}

func (a *Affinity) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			now := time.Now()
			a.store.Range(func(key, value any) bool {
				if now.After(value.(*affinityEntry).expiresAt) {
					a.store.Delete(key)
				}
				return true
			})
		}
	}
}
