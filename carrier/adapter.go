package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openparcel/openparcel/driver"
	"github.com/openparcel/openparcel/errs"
	"github.com/openparcel/openparcel/models"
)

// state is the Carrier Adapter's fetch lifecycle (spec §4.3): each
// instance advances strictly forward and is discarded after Fetch
// returns, the way the teacher's scrape operation is single-use per
// doScrapeRod call rather than a long-lived object.
type state int

const (
	stateInitial state = iota
	stateNavigated
	stateScriptsLoaded
	statePageReady
	stateScraped
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "INITIAL"
	case stateNavigated:
		return "NAVIGATED"
	case stateScriptsLoaded:
		return "SCRIPTS_LOADED"
	case statePageReady:
		return "PAGE_READY"
	case stateScraped:
		return "SCRAPED"
	case stateDone:
		return "DONE"
	default:
		return "FAILED"
	}
}

// Adapter drives one Driver session through a single carrier's fetch
// state machine. Not safe for concurrent or repeated use — build a new
// Adapter per scrape operation.
type Adapter struct {
	carrier Descriptor
	drv     driver.Driver
	state   state
}

// New builds an Adapter bound to carrier, using drv as its browser
// session. The caller owns drv's lifetime (typically the Scraping Pool,
// which opens one driver.Driver per operation via driver.Pool.Open).
func New(c Descriptor, drv driver.Driver) *Adapter {
	return &Adapter{carrier: c, drv: drv}
}

// probeResult is what the injected script reports back (see
// carriers_builtin.go's statusListProbe).
type probeResult struct {
	Reason  string                `json:"reason"`
	Message string                `json:"message"`
	Events  []models.TrackingEvent `json:"events"`
}

// Fetch drives the full NAVIGATED -> SCRIPTS_LOADED -> PAGE_READY ->
// SCRAPED -> DONE sequence for trackingCode, or returns an *errs.Error
// and leaves the adapter in FAILED. The ordering mirrors doScrapeRod:
// navigation completes before the script is injected, injection
// completes before the ready-selector wait, and the script is evaluated
// for its result only once one of the ready selectors is present.
func (a *Adapter) Fetch(ctx context.Context, trackingCode string, timeout time.Duration) (*models.History, error) {
	if err := a.drv.Open(ctx, a.carrier.TrackingURL(trackingCode), timeout); err != nil {
		a.state = stateFailed
		return nil, err
	}
	a.state = stateNavigated

	if err := a.drv.Inject(a.carrier.Script); err != nil {
		a.state = stateFailed
		return nil, errs.ScrapingBrowserError(fmt.Errorf("carrier %s: %w", a.carrier.UID, err))
	}
	a.state = stateScriptsLoaded

	if _, err := a.drv.WaitForAny(ctx, a.carrier.ReadySelectors, timeout); err != nil {
		a.state = stateFailed
		return nil, err
	}
	a.state = statePageReady

	raw, err := a.drv.Evaluate(a.carrier.Script)
	if err != nil {
		a.state = stateFailed
		return nil, errs.ScrapingBrowserError(fmt.Errorf("carrier %s: %w", a.carrier.UID, err))
	}
	a.state = stateScraped

	result, err := decodeProbe(raw)
	if err != nil {
		a.state = stateFailed
		return nil, errs.ScrapingBrowserError(fmt.Errorf("carrier %s: decode probe result: %w", a.carrier.UID, err))
	}

	if result.Reason != "" {
		a.state = stateFailed
		return nil, errs.ScrapingReturnedError(classify(result.Reason), result.Message)
	}

	a.state = stateDone
	return &models.History{Events: result.Events}, nil
}

// classify maps the carrier script's free-form reason string onto the
// taxonomy's ScrapedReason. Anything unrecognized is treated as an
// unexpected error rather than silently ignored (spec §4.4's "unexpected
// -> skip" rule applies to proxy testing, not to a tracking fetch, where
// an unclassified failure must still surface to the caller).
func classify(reason string) errs.ScrapedReason {
	switch reason {
	case "parcel_not_found":
		return errs.ReasonParcelNotFound
	case "invalid_tracking_code":
		return errs.ReasonInvalidTrackingCode
	case "rate_limited":
		return errs.ReasonRateLimiting
	case "blocked":
		return errs.ReasonBlocked
	case "proxy_timeout":
		return errs.ReasonProxyTimeout
	default:
		return errs.ScrapedReason(reason)
	}
}

func decodeProbe(raw any) (probeResult, error) {
	var out probeResult
	s, ok := raw.(string)
	if !ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return out, err
		}
		s = string(b)
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return out, err
	}
	return out, nil
}
