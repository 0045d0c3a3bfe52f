package proxymgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openparcel/openparcel/carrier"
	"github.com/openparcel/openparcel/driver"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

type memRepo struct {
	mu      sync.Mutex
	proxies []*models.Proxy
}

func (r *memRepo) ListProxies(ctx context.Context) ([]*models.Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Proxy(nil), r.proxies...), nil
}

func (r *memRepo) ListActiveProxies(ctx context.Context) ([]*models.Proxy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Proxy
	for _, p := range r.proxies {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) SaveProxy(ctx context.Context, p *models.Proxy) error { return nil }

func (r *memRepo) InsertProxy(ctx context.Context, p *models.Proxy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies = append(r.proxies, p)
	return nil
}

func (r *memRepo) ProxyExists(ctx context.Context, addr string, port int, proto models.ProxyProtocol) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.proxies {
		if p.Address == addr && p.Port == port && p.Protocol == proto {
			return true, nil
		}
	}
	return false, nil
}

// fakeProvider returns a fixed candidate list, standing in for a real
// provider's HTTP round trip.
type fakeProvider struct{ candidates []*models.Proxy }

func (f *fakeProvider) Fetch(ctx context.Context) ([]*models.Proxy, error) {
	return f.candidates, nil
}

// fakeOpener hands out a fakeSession whose Fetch-equivalent outcome is
// decided by reason, regardless of which carrier or proxy was asked.
type fakeOpener struct{ reason errs.ScrapedReason }

func (f *fakeOpener) Open(p *models.Proxy) (driver.Driver, error) {
	return &fakeSession{reason: f.reason}, nil
}

type fakeSession struct{ reason errs.ScrapedReason }

func (f *fakeSession) Open(ctx context.Context, url string, timeout time.Duration) error { return nil }
func (f *fakeSession) Inject(script string) error                                        { return nil }
func (f *fakeSession) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeSession) WaitForTitle(ctx context.Context, substring string, timeout time.Duration) error {
	return nil
}
func (f *fakeSession) Evaluate(expression string) (any, error) {
	if f.reason == "" {
		return `{"reason":""}`, nil
	}
	return `{"reason":"` + string(f.reason) + `"}`, nil
}
func (f *fakeSession) Close() {}

func withTestCarrier(t *testing.T) {
	t.Helper()
	carrier.Register(carrier.Descriptor{
		UID:                 "test-carrier",
		Name:                "Test Carrier",
		TrackingURLTemplate: "https://example.test/%s",
		OutdatedPeriodDays:  30,
		ReadySelectors:      []string{".ready"},
		Script:              "() => {}",
	})
}

func TestManagerTestReturnsTrueOnParcelNotFound(t *testing.T) {
	withTestCarrier(t)
	m := NewManager(&memRepo{}, &fakeOpener{reason: "parcel_not_found"}, time.Hour, time.Second)
	defer m.Stop()

	p := &models.Proxy{Address: "1.2.3.4", Port: 1080, Protocol: models.ProxySocks5}
	ok, err := m.Test(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, p.ValidCarriers)
}

func TestManagerTestReturnsFalseOnBlocked(t *testing.T) {
	withTestCarrier(t)
	m := NewManager(&memRepo{}, &fakeOpener{reason: "blocked"}, time.Hour, time.Second)
	defer m.Stop()

	p := &models.Proxy{Address: "1.2.3.4", Port: 1080, Protocol: models.ProxySocks5}
	ok, err := m.Test(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, p.ValidCarriers)
}

func TestManagerImportStartsInactive(t *testing.T) {
	repo := &memRepo{}
	m := NewManager(repo, &fakeOpener{}, time.Hour, time.Second)
	defer m.Stop()

	p := &models.Proxy{Address: "5.6.7.8", Port: 8080, Protocol: models.ProxyHTTP, Active: true}
	require.NoError(t, m.Import(context.Background(), p))
	assert.False(t, p.Active)
}

func TestFetchFromProviderSkipsDuplicatesAndFailures(t *testing.T) {
	withTestCarrier(t)
	repo := &memRepo{proxies: []*models.Proxy{
		{Address: "9.9.9.9", Port: 80, Protocol: models.ProxyHTTP},
	}}
	m := NewManager(repo, &fakeOpener{reason: "parcel_not_found"}, time.Hour, time.Second)
	defer m.Stop()

	provider := &fakeProvider{candidates: []*models.Proxy{
		{Address: "9.9.9.9", Port: 80, Protocol: models.ProxyHTTP},  // duplicate, skipped untested
		{Address: "1.2.3.4", Port: 1080, Protocol: models.ProxySocks5}, // tests successfully
	}}

	res, err := m.FetchFromProvider(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Duplicate)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 0, res.Failed)

	active, err := m.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "1.2.3.4", active[0].Address)
}

func TestFetchFromProviderDiscardsFailedTests(t *testing.T) {
	withTestCarrier(t)
	repo := &memRepo{}
	m := NewManager(repo, &fakeOpener{reason: "blocked"}, time.Hour, time.Second)
	defer m.Stop()

	provider := &fakeProvider{candidates: []*models.Proxy{
		{Address: "1.2.3.4", Port: 1080, Protocol: models.ProxySocks5},
	}}

	res, err := m.FetchFromProvider(context.Background(), provider)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Imported)

	all, err := repo.ListProxies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAffinityExpiresEntries(t *testing.T) {
	a := NewAffinity(time.Millisecond)
	defer a.Stop()
	a.Set("ctt", 42)
	time.Sleep(5 * time.Millisecond)
	_, ok := a.Get("ctt")
	assert.False(t, ok)
}
