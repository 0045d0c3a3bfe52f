// Package tracking wires the Carrier Registry (C1), Carrier Adapter
// (C3), Proxy Manager (C4), Scraping Pool (C5), and Freshness Cache
// (C6) together behind the two operations the HTTP API actually needs:
// track by (carrier, code) and track by opaque slug.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/openparcel/openparcel/carrier"
	"github.com/openparcel/openparcel/driver"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/freshnesscache"
	"github.com/openparcel/openparcel/models"
	"github.com/openparcel/openparcel/pool"
	"github.com/openparcel/openparcel/proxymgr"
	"github.com/openparcel/openparcel/slug"
)

// Repository is the subset of store.Store this service needs beyond
// what freshnesscache.Repository already covers.
type Repository interface {
	freshnesscache.Repository
	InsertParcel(ctx context.Context, p *models.Parcel) error
	TouchParcel(ctx context.Context, parcelID int64) error
	InsertHistory(ctx context.Context, parcelID int64, hist *models.History) error
	GetLinkName(ctx context.Context, userID, parcelID int64) (string, error)
}

// Service is the tracking orchestrator bound to one process's
// collaborators. It owns the Scraping Pool outright: the pool's single
// Fetcher resolves the carrier for each admitted parcel itself, so every
// Track call shares the same pool instead of each needing its own.
type Service struct {
	repo           Repository
	cache          *freshnesscache.Cache
	pool           *pool.Pool
	proxies        *proxymgr.Manager
	drivers        *driver.Pool
	fetchTimeout   time.Duration
	refreshTimeout freshnesscache.RefreshTimeout
}

// NewService wires a Service and the Scraping Pool behind it.
// refreshTimeout is the global staleness window (spec example: 600s)
// applied uniformly across carriers. poolSize bounds concurrent scrapes;
// admissionTimeout bounds how long Fetch will wait for a free slot before
// failing with errs.ServerOverwhelmed.
func NewService(repo Repository, cache *freshnesscache.Cache, proxies *proxymgr.Manager, drivers *driver.Pool, fetchTimeout, refreshTimeout time.Duration, poolSize int, admissionTimeout time.Duration) *Service {
	s := &Service{
		repo:           repo,
		cache:          cache,
		proxies:        proxies,
		drivers:        drivers,
		fetchTimeout:   fetchTimeout,
		refreshTimeout: freshnesscache.RefreshTimeout(refreshTimeout.Seconds()),
	}
	s.pool = pool.New(s.runAdapterForParcel, poolSize, admissionTimeout)
	return s
}

// Pool exposes the underlying Scraping Pool, e.g. for a health handler
// reporting in-flight scrape counts.
func (s *Service) Pool() *pool.Pool { return s.pool }

// Track resolves a (carrier, code) tracking request: scrape fresh data
// when needed, otherwise serve the cached snapshot. force is only
// honored when requester is a superuser; an ordinary user's force is
// silently ignored, matching spec §4.6's resolved policy.
func (s *Service) Track(ctx context.Context, requester *models.User, carrierID, trackingCode string, force bool) (*models.TrackResponse, error) {
	desc, ok := carrier.ByID(carrierID)
	if !ok {
		return nil, errs.NotFound(fmt.Sprintf("unknown carrier %q", carrierID))
	}
	if !slug.IsTrackingCodeValid(trackingCode) {
		return nil, errs.TrackingCodeInvalid(trackingCode)
	}
	force = force && requester.AccessLevel.IsSuperuser()

	dec, err := s.cache.LookupByCarrierAndCode(ctx, requester.ID, carrierID, trackingCode, force, s.refreshTimeout)
	if err != nil {
		return nil, err
	}

	parcel := dec.Parcel
	if parcel == nil {
		generatedSlug, err := slug.Generate(desc.UID, trackingCode)
		if err != nil {
			return nil, fmt.Errorf("tracking: generate slug: %w", err)
		}
		parcel = &models.Parcel{CarrierID: carrierID, TrackingCode: trackingCode, Slug: generatedSlug}
		if err := s.repo.InsertParcel(ctx, parcel); err != nil {
			return nil, errs.DatabaseError(err)
		}
	}

	hist, retrieved, cached := dec.History, dec.Retrieved, dec.Cached
	if dec.Refresh || hist == nil {
		hist, err = s.scrape(ctx, parcel)
		if err != nil {
			return nil, err
		}
		retrieved, cached = time.Now(), false
	}

	name, err := s.repo.GetLinkName(ctx, requester.ID, parcel.ID)
	if err != nil {
		return nil, errs.DatabaseError(err)
	}

	outdated := parcel.Outdated(desc.OutdatedPeriodDays, time.Now())
	return toTrackResponse(parcel, hist, retrieved, name, cached, dec.Archived, outdated), nil
}

// TrackBySlug resolves an opaque-slug lookup; per freshnesscache's
// OutdatedBySlug rule this path never triggers a scrape.
func (s *Service) TrackBySlug(ctx context.Context, requester *models.User, parcelSlug string) (*models.TrackResponse, error) {
	dec, err := s.cache.LookupBySlug(ctx, requester.ID, parcelSlug)
	if err != nil {
		return nil, err
	}

	name, err := s.repo.GetLinkName(ctx, requester.ID, dec.Parcel.ID)
	if err != nil {
		return nil, errs.DatabaseError(err)
	}

	outdated := false
	if desc, ok := carrier.ByID(dec.Parcel.CarrierID); ok {
		outdated = dec.Parcel.Outdated(desc.OutdatedPeriodDays, time.Now())
	}

	return toTrackResponse(dec.Parcel, dec.History, dec.Retrieved, name, dec.Cached, dec.Archived, outdated), nil
}

// scrape admits the parcel into the Scraping Pool, waits for the result
// (whether this call ran it or joined someone else's), and write-throughs
// it to the cache and the store on success.
func (s *Service) scrape(ctx context.Context, p *models.Parcel) (*models.History, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	result, err := s.pool.Fetch(fetchCtx, p)
	if err != nil {
		return nil, err
	}

	hist, err := result.Op.Wait(fetchCtx)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertHistory(ctx, p.ID, hist); err != nil {
		return nil, errs.DatabaseError(err)
	}
	if err := s.repo.TouchParcel(ctx, p.ID); err != nil {
		return nil, errs.DatabaseError(err)
	}
	_ = s.cache.WriteThrough(ctx, p, hist)

	return hist, nil
}

// runAdapterForParcel is the Scraping Pool's Fetcher. It resolves the
// carrier from the parcel itself so one Pool, and one Fetcher, serves
// every carrier rather than needing to be rebuilt per request.
func (s *Service) runAdapterForParcel(ctx context.Context, p *models.Parcel) (*models.History, error) {
	desc, ok := carrier.ByID(p.CarrierID)
	if !ok {
		return nil, errs.NotFound(fmt.Sprintf("unknown carrier %q", p.CarrierID))
	}

	var proxy *models.Proxy
	if s.proxies != nil {
		proxy, _ = s.proxies.Pick(ctx, desc.UID)
	}

	drv, err := s.drivers.Open(proxy)
	if err != nil {
		return nil, err
	}
	defer drv.Close()

	a := carrier.New(desc, drv)
	hist, err := a.Fetch(ctx, p.TrackingCode, s.fetchTimeout)

	// A proxy-attributable failure burns the affinity pairing so the next
	// attempt for this carrier doesn't keep reaching for the same proxy.
	if err != nil && proxy != nil && s.proxies != nil {
		if e := errs.As(err); e.Reason == errs.ReasonProxyTimeout {
			s.proxies.Forget(desc.UID)
		}
	}

	return hist, err
}

func toTrackResponse(p *models.Parcel, hist *models.History, retrieved time.Time, name string, cached, archived, outdated bool) *models.TrackResponse {
	resp := &models.TrackResponse{
		Slug:         p.Slug,
		CarrierID:    p.CarrierID,
		TrackingCode: p.TrackingCode,
		Created:      p.Created,
		Retrieved:    retrieved,
		Cached:       cached,
		Outdated:     outdated,
		Archived:     archived,
		Name:         name,
	}
	if hist != nil {
		resp.History = *hist
	}
	return resp
}
