package carrier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeDriver is a hand-rolled driver.Driver stub. The real driver talks
// to a headless browser, which this test suite has no business doing;
// it only needs to exercise the Adapter's state transitions and error
// translation.
type fakeDriver struct {
	openErr       error
	waitIdx       int
	waitErr       error
	evaluateValue any
	evaluateErr   error
	injected      []string
}

func (f *fakeDriver) Open(ctx context.Context, url string, timeout time.Duration) error { return f.openErr }
func (f *fakeDriver) Inject(script string) error {
	f.injected = append(f.injected, script)
	return nil
}
func (f *fakeDriver) WaitForAny(ctx context.Context, selectors []string, timeout time.Duration) (int, error) {
	return f.waitIdx, f.waitErr
}
func (f *fakeDriver) WaitForTitle(ctx context.Context, substring string, timeout time.Duration) error {
	return nil
}
func (f *fakeDriver) Evaluate(expression string) (any, error) { return f.evaluateValue, f.evaluateErr }
func (f *fakeDriver) Close()                                  {}

func testDescriptor() Descriptor {
	return Descriptor{
		UID:                 "ctt",
		Name:                "CTT",
		TrackingURLTemplate: "https://example.test/track?q=%s",
		OutdatedPeriodDays:  60,
		ReadySelectors:      []string{".ready"},
		Script:              "() => {}",
	}
}

func TestAdapterFetchSuccess(t *testing.T) {
	fd := &fakeDriver{evaluateValue: `{"reason":"","events":[{"status_code":"DELIVERED","description":"delivered to recipient"}]}`}
	a := New(testDescriptor(), fd)

	hist, err := a.Fetch(context.Background(), "RR123456789PT", time.Second)
	require.NoError(t, err)
	require.Len(t, hist.Events, 1)
	assert.Equal(t, "DELIVERED", hist.Events[0].StatusCode)
	assert.Equal(t, stateDone, a.state)
	assert.Len(t, fd.injected, 1)
}

func TestAdapterFetchParcelNotFound(t *testing.T) {
	fd := &fakeDriver{evaluateValue: `{"reason":"parcel_not_found","message":"no such object"}`}
	a := New(testDescriptor(), fd)

	_, err := a.Fetch(context.Background(), "BADCODE", time.Second)
	require.Error(t, err)
	assert.Equal(t, stateFailed, a.state)
}

func TestAdapterFetchOpenFails(t *testing.T) {
	fd := &fakeDriver{openErr: assertErr{"proxy dead"}}
	a := New(testDescriptor(), fd)

	_, err := a.Fetch(context.Background(), "RR123456789PT", time.Second)
	require.Error(t, err)
	assert.Equal(t, stateFailed, a.state)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

// TestAdapterFetchOpenFailsGomock exercises the same open-failure path
// as TestAdapterFetchOpenFails, but via a gomock double with explicit
// call expectations rather than fakeDriver's canned fields.
func TestAdapterFetchOpenFailsGomock(t *testing.T) {
	ctrl := gomock.NewController(t)
	md := NewMockDriver(ctrl)
	md.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(assertErr{"proxy dead"})

	a := New(testDescriptor(), md)
	_, err := a.Fetch(context.Background(), "RR123456789PT", time.Second)
	require.Error(t, err)
	assert.Equal(t, stateFailed, a.state)
}

// TestAdapterFetchSuccessGomock exercises the happy path through a
// gomock double, asserting the exact sequence of driver calls the
// Carrier Adapter's state machine issues.
func TestAdapterFetchSuccessGomock(t *testing.T) {
	ctrl := gomock.NewController(t)
	md := NewMockDriver(ctrl)

	gomock.InOrder(
		md.EXPECT().Open(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		md.EXPECT().Inject(gomock.Any()).Return(nil),
		md.EXPECT().WaitForAny(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, nil),
		md.EXPECT().Evaluate(gomock.Any()).Return(`{"reason":"","events":[{"status_code":"DELIVERED","description":"delivered"}]}`, nil),
	)

	a := New(testDescriptor(), md)
	hist, err := a.Fetch(context.Background(), "RR123456789PT", time.Second)
	require.NoError(t, err)
	require.Len(t, hist.Events, 1)
	assert.Equal(t, stateDone, a.state)
}
