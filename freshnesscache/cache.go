package freshnesscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// Repository is the persistence boundary (C7) backing cache misses.
type Repository interface {
	GetParcelByCarrierAndCode(ctx context.Context, carrierID, trackingCode string) (*models.Parcel, bool, error)
	GetParcelBySlug(ctx context.Context, slug string) (*models.Parcel, bool, error)
	LatestHistory(ctx context.Context, parcelID int64) (*models.History, time.Time, error)
	IsArchived(ctx context.Context, userID, parcelID int64) (bool, error)
}

// Cache is the read-through/write-through front for parcel lookups,
// backed by redis. Entries are keyed by parcel identity and store the
// latest HistorySnapshot's JSON payload, the way the teacher's in-
// memory Cache keys by a content hash and stores the full
// ScrapeResponse (cache/cache.go) — generalized here to a shared
// redis instance so every process behind a load balancer sees the
// same freshness state.
type Cache struct {
	rdb  *redis.Client
	repo Repository
	ttl  time.Duration
}

func New(rdb *redis.Client, repo Repository, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, repo: repo, ttl: ttl}
}

type cacheEntry struct {
	History   models.History `json:"history"`
	Retrieved time.Time      `json:"retrieved"`
}

func cacheKey(parcelID int64) string {
	return fmt.Sprintf("openparcel:history:%d", parcelID)
}

// LookupByCarrierAndCode resolves a (carrier, code) tracking request.
// A redis hit still runs ShouldRefresh against the cached retrieval
// time; a miss always requires a refresh.
func (c *Cache) LookupByCarrierAndCode(ctx context.Context, userID int64, carrierID, trackingCode string, force bool, refreshTimeout RefreshTimeout) (Decision, error) {
	p, found, err := c.repo.GetParcelByCarrierAndCode(ctx, carrierID, trackingCode)
	if err != nil {
		return Decision{}, errs.DatabaseError(err)
	}
	if !found {
		return Decision{Refresh: true}, nil
	}
	return c.lookup(ctx, userID, p, force, refreshTimeout, false)
}

// LookupBySlug resolves an opaque-slug tracking request. Per
// OutdatedBySlug, this path never triggers a refresh.
func (c *Cache) LookupBySlug(ctx context.Context, userID int64, slug string) (Decision, error) {
	p, found, err := c.repo.GetParcelBySlug(ctx, slug)
	if err != nil {
		return Decision{}, errs.DatabaseError(err)
	}
	if !found {
		return Decision{}, errs.NotFound(fmt.Sprintf("no parcel with slug %q", slug))
	}
	return c.lookup(ctx, userID, p, false, 0, true)
}

func (c *Cache) lookup(ctx context.Context, userID int64, p *models.Parcel, force bool, refreshTimeout RefreshTimeout, bySlug bool) (Decision, error) {
	archived, err := c.repo.IsArchived(ctx, userID, p.ID)
	if err != nil {
		return Decision{}, errs.DatabaseError(err)
	}

	hist, retrieved, cached, err := c.readThrough(ctx, p.ID)
	if err != nil {
		return Decision{}, err
	}

	if OutdatedBySlug(bySlug) {
		return Decision{Parcel: p, History: hist, Retrieved: retrieved, Cached: cached, Archived: archived}, nil
	}

	diffSecs := int64(time.Since(retrieved).Seconds())
	if !cached {
		diffSecs = int64(refreshTimeout) + 1 // force a miss to read as stale
	}

	refresh := ShouldRefresh(archived, diffSecs, force, refreshTimeout)
	return Decision{Parcel: p, History: hist, Retrieved: retrieved, Refresh: refresh, Cached: cached, Archived: archived}, nil
}

// readThrough returns the cached history for parcelID from redis,
// falling back to the repository's latest snapshot and repopulating
// redis on a miss.
func (c *Cache) readThrough(ctx context.Context, parcelID int64) (*models.History, time.Time, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(parcelID)).Bytes()
	if err == nil {
		var e cacheEntry
		if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil {
			return &e.History, e.Retrieved, true, nil
		}
	} else if err != redis.Nil {
		return nil, time.Time{}, false, errs.DatabaseError(fmt.Errorf("redis get: %w", err))
	}

	hist, retrieved, err := c.repo.LatestHistory(ctx, parcelID)
	if err != nil {
		return nil, time.Time{}, false, errs.DatabaseError(err)
	}
	if hist == nil {
		return nil, time.Time{}, false, nil
	}

	c.writeThroughLocked(ctx, parcelID, hist, retrieved)
	return hist, retrieved, true, nil
}

// WriteThrough stores a freshly scraped history, called by the tracking
// service once a scrape it waited on has completed successfully and been
// saved to the store.
func (c *Cache) WriteThrough(ctx context.Context, p *models.Parcel, hist *models.History) error {
	c.writeThroughLocked(ctx, p.ID, hist, time.Now())
	return nil
}

func (c *Cache) writeThroughLocked(ctx context.Context, parcelID int64, hist *models.History, retrieved time.Time) {
	entry := cacheEntry{History: *hist, Retrieved: retrieved}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Best-effort: a failed cache write must not fail the request that
	// already has a good answer from the database.
	_ = c.rdb.Set(ctx, cacheKey(parcelID), b, c.ttl).Err()
}

// Invalidate drops the cached entry for a parcel, e.g. after archiving
// or deletion, so the next lookup re-reads from the repository.
func (c *Cache) Invalidate(ctx context.Context, parcelID int64) error {
	return c.rdb.Del(ctx, cacheKey(parcelID)).Err()
}
