// Package freshnesscache implements the Freshness Cache (C6): the
// policy deciding whether a cached parcel is still good enough to
// serve, plus the read-through/write-through cache itself.
package freshnesscache

import (
	"time"

	"github.com/openparcel/openparcel/models"
)

// RefreshTimeout is how long a parcel's last scrape may age before it
// is considered stale, absent an explicit force.
type RefreshTimeout int64 // seconds

// ShouldRefresh implements spec §9's resolved policy:
//
//  1. An archived parcel never refreshes, even if force is true. This
//     is the Open Question resolution: archival means "I am done
//     tracking this", and that intent outranks an impatient client.
//  2. A non-archived parcel with force=true always refreshes.
//  3. Otherwise refresh once |diffSecs| reaches or exceeds refreshTimeout.
func ShouldRefresh(archived bool, diffSecs int64, force bool, refreshTimeout RefreshTimeout) bool {
	if archived {
		return false
	}
	if force {
		return true
	}
	abs := diffSecs
	if abs < 0 {
		abs = -abs
	}
	return abs >= int64(refreshTimeout)
}

// OutdatedBySlug reports spec §4.6's rule that a lookup by opaque slug
// always serves whatever is cached, never triggering a refresh — a slug
// is a pointer to a specific scrape result, not a live tracking query.
func OutdatedBySlug(lookupBySlug bool) bool {
	return lookupBySlug
}

// Decision is what a Lookup call resolved to.
type Decision struct {
	Parcel    *models.Parcel
	History   *models.History
	Retrieved time.Time // when History was captured; zero if Cached is false
	Refresh   bool      // true if the caller must now trigger a scrape
	Cached    bool
	Archived  bool // the requesting user's link has archived this parcel
}
