package freshnesscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/openparcel/openparcel/models"
)

type fakeRepo struct {
	parcel   *models.Parcel
	history  *models.History
	scraped  time.Time
	archived bool
}

func (f *fakeRepo) GetParcelByCarrierAndCode(ctx context.Context, carrierID, trackingCode string) (*models.Parcel, bool, error) {
	if f.parcel == nil {
		return nil, false, nil
	}
	return f.parcel, true, nil
}

func (f *fakeRepo) GetParcelBySlug(ctx context.Context, slug string) (*models.Parcel, bool, error) {
	if f.parcel == nil {
		return nil, false, nil
	}
	return f.parcel, true, nil
}

func (f *fakeRepo) LatestHistory(ctx context.Context, parcelID int64) (*models.History, time.Time, error) {
	return f.history, f.scraped, nil
}

func (f *fakeRepo) IsArchived(ctx context.Context, userID, parcelID int64) (bool, error) {
	return f.archived, nil
}

func newTestCache(t *testing.T, repo Repository) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, repo, time.Hour)
}

func TestLookupByCarrierAndCodeMissRequiresRefresh(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestCache(t, repo)

	dec, err := c.LookupByCarrierAndCode(context.Background(), 1, "ctt", "RR1", false, 60)
	require.NoError(t, err)
	require.True(t, dec.Refresh)
	require.Nil(t, dec.Parcel)
}

func TestLookupByCarrierAndCodeFreshDoesNotRefresh(t *testing.T) {
	repo := &fakeRepo{
		parcel:  &models.Parcel{ID: 1, CarrierID: "ctt", TrackingCode: "RR1"},
		history: &models.History{Events: []models.TrackingEvent{{StatusCode: "IN_TRANSIT"}}},
		scraped: time.Now(),
	}
	c := newTestCache(t, repo)

	dec, err := c.LookupByCarrierAndCode(context.Background(), 1, "ctt", "RR1", false, 3600)
	require.NoError(t, err)
	require.False(t, dec.Refresh)
	require.True(t, dec.Cached)
}

func TestLookupByCarrierAndCodeStaleTriggersRefresh(t *testing.T) {
	repo := &fakeRepo{
		parcel:  &models.Parcel{ID: 1, CarrierID: "ctt", TrackingCode: "RR1"},
		history: &models.History{Events: []models.TrackingEvent{{StatusCode: "IN_TRANSIT"}}},
		scraped: time.Now().Add(-2 * time.Hour),
	}
	c := newTestCache(t, repo)

	dec, err := c.LookupByCarrierAndCode(context.Background(), 1, "ctt", "RR1", false, 60)
	require.NoError(t, err)
	require.True(t, dec.Refresh)
}

func TestLookupByCarrierAndCodeArchivedNeverRefreshes(t *testing.T) {
	repo := &fakeRepo{
		parcel:   &models.Parcel{ID: 1, CarrierID: "ctt", TrackingCode: "RR1"},
		history:  &models.History{Events: []models.TrackingEvent{{StatusCode: "DELIVERED"}}},
		scraped:  time.Now().Add(-1000 * time.Hour),
		archived: true,
	}
	c := newTestCache(t, repo)

	dec, err := c.LookupByCarrierAndCode(context.Background(), 1, "ctt", "RR1", true, 60)
	require.NoError(t, err)
	require.False(t, dec.Refresh)
}

func TestLookupBySlugNeverRefreshes(t *testing.T) {
	repo := &fakeRepo{
		parcel:  &models.Parcel{ID: 1, Slug: "ctt-rr1234-abcd"},
		history: &models.History{Events: []models.TrackingEvent{{StatusCode: "DELIVERED"}}},
		scraped: time.Now().Add(-1000 * time.Hour),
	}
	c := newTestCache(t, repo)

	dec, err := c.LookupBySlug(context.Background(), 1, "ctt-rr1234-abcd")
	require.NoError(t, err)
	require.False(t, dec.Refresh)
}

func TestWriteThroughThenReadHitsCache(t *testing.T) {
	repo := &fakeRepo{parcel: &models.Parcel{ID: 7, CarrierID: "dhl", TrackingCode: "X"}}
	c := newTestCache(t, repo)

	hist := &models.History{Events: []models.TrackingEvent{{StatusCode: "DELIVERED"}}}
	require.NoError(t, c.WriteThrough(context.Background(), repo.parcel, hist))

	got, retrieved, cached, err := c.readThrough(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, cached)
	require.WithinDuration(t, time.Now(), retrieved, time.Second)
	require.Equal(t, hist.Events[0].StatusCode, got.Events[0].StatusCode)
}
