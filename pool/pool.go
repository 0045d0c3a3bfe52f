// Package pool implements the Scraping Pool (C5): the single place a
// scrape actually runs. It bounds concurrent browser sessions and
// coalesces concurrent requests for the same parcel into one operation,
// the way the teacher's engine.AdaptivePool bounds and reuses page
// handles — generalized here from "reuse a page" to "reuse an in-flight
// fetch", since two callers asking for the same parcel at the same
// moment must share one scrape rather than both paying for one.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// opState is a ScrapeOperation's lifecycle (spec §5).
type opState int

const (
	opSetup opState = iota
	opFetching
	opFetched
	opScraped
	opDone
)

// Operation is one in-flight or completed scrape. Callers never
// construct these directly; Fetch returns one wrapped in a Result.
type Operation struct {
	Parcel *models.Parcel

	// ID is this operation's request UUID (spec §5: "a logger with the
	// request UUID"), independent of any HTTP reqid — a single operation
	// may be shared by several HTTP requests via coalescing.
	ID     string
	Logger *slog.Logger

	mu    sync.Mutex
	state opState
	done  chan struct{}

	History *models.History
	Err     error
}

func newOperation(p *models.Parcel) *Operation {
	id := uuid.NewString()
	return &Operation{
		Parcel: p,
		ID:     id,
		Logger: slog.With("op", id, "carrier", p.CarrierID, "tracking_code", p.TrackingCode),
		state:  opSetup,
		done:   make(chan struct{}),
	}
}

// Wait blocks until the operation finishes or ctx is canceled. A waiter
// that joined an in-flight operation can give up on its own deadline
// without affecting the operation itself — the worker always runs to
// completion, because other joined waiters may still be depending on it.
func (o *Operation) Wait(ctx context.Context) (*models.History, error) {
	select {
	case <-o.done:
		return o.History, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Operation) finish(hist *models.History, err error) {
	o.mu.Lock()
	o.History, o.Err, o.state = hist, err, opDone
	o.mu.Unlock()
	close(o.done)
}

// Result is the outcome of a Fetch admission attempt: either this call
// admitted a new operation or it joined a running one (see Joined);
// there is no exception-based "duplicate operation" control flow — the
// caller switches on which result it got.
type Result struct {
	Op     *Operation
	Joined bool // true if this call attached to an already-running operation
}

// Admitted reports whether this call is the one actually running the
// scrape (as opposed to Joined, which means another caller's operation
// will produce the result for us too).
func (r Result) Admitted() bool { return !r.Joined }

// Fetcher performs the actual scrape once an Operation has been
// admitted. carrier.Adapter.Fetch satisfies a narrower version of this;
// callers adapt it with a small closure at construction time.
type Fetcher func(ctx context.Context, p *models.Parcel) (*models.History, error)

// Pool bounds concurrent scrapes and coalesces duplicate requests.
type Pool struct {
	fetch Fetcher
	sem   chan struct{}

	mu       sync.Mutex
	inFlight map[string]*Operation // keyed by identityKey(parcel)

	admissionTimeout time.Duration
}

// New builds a Pool. maxConcurrent bounds how many scrapes run at once;
// admissionTimeout bounds how long Fetch will wait for a semaphore slot
// before returning ServerOverwhelmed.
func New(fetch Fetcher, maxConcurrent int, admissionTimeout time.Duration) *Pool {
	return &Pool{
		fetch:            fetch,
		sem:              make(chan struct{}, maxConcurrent),
		inFlight:         make(map[string]*Operation),
		admissionTimeout: admissionTimeout,
	}
}

// identityKey mirrors models.Parcel.Similar's comparison: prefer slug
// when present, otherwise carrier+code.
func identityKey(p *models.Parcel) string {
	if p.Slug != "" {
		return "slug:" + p.Slug
	}
	return "cc:" + p.CarrierID + ":" + p.TrackingCode
}

// Fetch admits p for scraping, or joins an already-running operation
// for the same identity. Admission blocks for at most admissionTimeout
// waiting for a free concurrency slot; on timeout it returns
// errs.ServerOverwhelmed. Once admitted, the operation runs to
// completion independent of ctx — canceling ctx only abandons this
// caller's wait, via Operation.Wait, not the scrape itself.
//
// Per spec §4.5's fetch protocol, an operation only joins the
// coalescing list (and so only counts toward InFlightCount) once it has
// actually been admitted — a caller still waiting for a free slot holds
// no list entry, so |in_flight| never exceeds the concurrency ceiling
// even when far more than max_instances callers are blocked on
// admission at once.
func (pl *Pool) Fetch(ctx context.Context, p *models.Parcel) (Result, error) {
	key := identityKey(p)

	pl.mu.Lock()
	if op, ok := pl.inFlight[key]; ok {
		pl.mu.Unlock()
		return Result{Op: op, Joined: true}, nil
	}
	pl.mu.Unlock()

	admitCtx, cancel := context.WithTimeout(ctx, pl.admissionTimeout)
	defer cancel()

	select {
	case pl.sem <- struct{}{}:
	case <-admitCtx.Done():
		return Result{}, errs.ServerOverwhelmed()
	}

	// Re-check under lock: another caller may have been admitted for the
	// same identity while we were waiting for a slot above.
	pl.mu.Lock()
	if op, ok := pl.inFlight[key]; ok {
		pl.mu.Unlock()
		<-pl.sem // we took a slot we no longer need; let someone else use it
		return Result{Op: op, Joined: true}, nil
	}
	op := newOperation(p)
	pl.inFlight[key] = op
	pl.mu.Unlock()

	go pl.run(op, key)

	return Result{Op: op, Joined: false}, nil
}

// run executes the admitted operation in the background and releases
// both the concurrency slot and the in-flight registration when done,
// so the next caller for the same identity starts a fresh scrape
// instead of joining a finished one.
func (pl *Pool) run(op *Operation, key string) {
	defer func() { <-pl.sem }()
	defer func() {
		pl.mu.Lock()
		delete(pl.inFlight, key)
		pl.mu.Unlock()
	}()

	op.mu.Lock()
	op.state = opFetching
	op.mu.Unlock()

	// No deadline tied to the admitting caller's context: a joined
	// waiter giving up must not cancel the scrape other waiters need.
	hist, err := pl.fetch(context.Background(), op.Parcel)
	logUnlessExpected(op.Logger, err)

	op.mu.Lock()
	op.state = opScraped
	op.mu.Unlock()

	op.finish(hist, err)
}

// logUnlessExpected implements spec §4.5's worker logging rule:
// ParcelNotFound/InvalidTrackingCode are routine outcomes of a scrape and
// are stored without logging; every other error is logged at warning
// before it is re-raised to the awaiting caller(s).
func logUnlessExpected(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if e := errs.As(err); e.Kind == errs.KindScrapingReturnedError {
		switch e.Reason {
		case errs.ReasonParcelNotFound, errs.ReasonInvalidTrackingCode:
			return
		}
	}
	logger.Warn("scrape operation failed", "error", err)
}

// InFlightCount reports how many distinct operations are currently
// running, for metrics/health endpoints.
func (pl *Pool) InFlightCount() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.inFlight)
}
