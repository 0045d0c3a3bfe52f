package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

func slowFetcher(delay time.Duration, calls *atomic.Int32) Fetcher {
	return func(ctx context.Context, p *models.Parcel) (*models.History, error) {
		calls.Add(1)
		time.Sleep(delay)
		return &models.History{Events: []models.TrackingEvent{{StatusCode: "DELIVERED"}}}, nil
	}
}

func TestFetchJoinsDuplicateRequest(t *testing.T) {
	var calls atomic.Int32
	pl := New(slowFetcher(50*time.Millisecond, &calls), 4, time.Second)
	p := &models.Parcel{CarrierID: "ctt", TrackingCode: "RR1"}

	r1, err := pl.Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, r1.Admitted())

	r2, err := pl.Fetch(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, r2.Joined)
	assert.Same(t, r1.Op, r2.Op)

	hist, err := r2.Op.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, hist.Events, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchAdmissionTimeoutReturnsServerOverwhelmed(t *testing.T) {
	var calls atomic.Int32
	pl := New(slowFetcher(100*time.Millisecond, &calls), 1, 10*time.Millisecond)

	_, err := pl.Fetch(context.Background(), &models.Parcel{CarrierID: "ctt", TrackingCode: "A"})
	require.NoError(t, err)

	_, err = pl.Fetch(context.Background(), &models.Parcel{CarrierID: "ctt", TrackingCode: "B"})
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.KindServerOverwhelmed, e.Kind)
}

func TestWaiterCancellationDoesNotAbortOperation(t *testing.T) {
	var calls atomic.Int32
	pl := New(slowFetcher(80*time.Millisecond, &calls), 2, time.Second)
	p := &models.Parcel{CarrierID: "dhl", TrackingCode: "X"}

	r, err := pl.Fetch(context.Background(), p)
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err = r.Op.Wait(shortCtx)
	require.Error(t, err)

	hist, err := r.Op.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, hist.Events, 1)
}

func TestDistinctParcelsRunConcurrently(t *testing.T) {
	var calls atomic.Int32
	pl := New(slowFetcher(30*time.Millisecond, &calls), 4, time.Second)

	r1, _ := pl.Fetch(context.Background(), &models.Parcel{CarrierID: "ctt", TrackingCode: "A"})
	r2, _ := pl.Fetch(context.Background(), &models.Parcel{CarrierID: "ctt", TrackingCode: "B"})
	assert.NotSame(t, r1.Op, r2.Op)

	_, _ = r1.Op.Wait(context.Background())
	_, _ = r2.Op.Wait(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}
