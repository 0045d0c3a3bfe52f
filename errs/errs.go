// Package errs implements the structured error taxonomy (C8): every
// failure that reaches a process boundary carries a title, a message,
// an HTTP-like status code, and an optional wrapped cause.
package errs

import "fmt"

// Kind identifies one of the taxonomy's error categories.
type Kind string

const (
	KindNotEnoughParameters    Kind = "NOT_ENOUGH_PARAMETERS"
	KindAuthenticationFailed   Kind = "AUTHENTICATION_FAILED"
	KindTrackingCodeInvalid    Kind = "TRACKING_CODE_INVALID"
	KindScrapingReturnedError  Kind = "SCRAPING_RETURNED_ERROR"
	KindScrapingBrowserError   Kind = "SCRAPING_BROWSER_ERROR"
	KindServerOverwhelmed      Kind = "SERVER_OVERWHELMED"
	KindDatabaseError          Kind = "DATABASE_ERROR"
	KindScrapingJsNotFound     Kind = "SCRAPING_JS_NOT_FOUND"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
)

// ScrapedReason carries the sub-classification the Carrier
// Adapter's errorCheck() probe produced.
type ScrapedReason string

const (
	ReasonParcelNotFound     ScrapedReason = "ParcelNotFound"
	ReasonInvalidTrackingCode ScrapedReason = "InvalidTrackingCode"
	ReasonRateLimiting       ScrapedReason = "RateLimiting"
	ReasonBlocked            ScrapedReason = "Blocked"
	ReasonProxyTimeout       ScrapedReason = "ProxyTimeout"
)

// Error is the structured failure type used across every package
// boundary in this module. It implements error and supports wrapping
// via Unwrap so callers can still errors.Is/As through it.
type Error struct {
	Kind    Kind
	Title   string
	Message string
	Status  int // HTTP-like status code
	Reason  ScrapedReason // only meaningful when Kind == KindScrapingReturnedError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the JSON-facing projection of an Error.
type Detail struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	ReqID   string `json:"reqid,omitempty"`
}

// ToDetail projects the error for an API response, attaching reqid if set.
func (e *Error) ToDetail(reqid string) Detail {
	return Detail{Title: e.Title, Message: e.Message, ReqID: reqid}
}

// New builds an Error with an explicit status code.
func New(kind Kind, title, message string, status int) *Error {
	return &Error{Kind: kind, Title: title, Message: message, Status: status}
}

// Wrap builds an Error that preserves an underlying cause.
func Wrap(kind Kind, title, message string, status int, cause error) *Error {
	return &Error{Kind: kind, Title: title, Message: message, Status: status, Err: cause}
}

// NotEnoughParameters reports a missing request parameter. status lets
// callers distinguish the 400/401/422 cases spec.md describes depending
// on which parameter is missing.
func NotEnoughParameters(message string, status int) *Error {
	return New(KindNotEnoughParameters, "Not enough parameters", message, status)
}

func AuthenticationFailed(message string) *Error {
	return New(KindAuthenticationFailed, "Authentication failed", message, 401)
}

func TrackingCodeInvalid(code string) *Error {
	return New(KindTrackingCodeInvalid, "Invalid tracking code", fmt.Sprintf("%q is not a valid tracking code", code), 422)
}

// ScrapingReturnedError translates a classified carrier-script error
// probe result into the taxonomy. ParcelNotFound/InvalidTrackingCode are
// always 422; Blocked/RateLimiting are 422 with a retry-later message;
// any other reason is treated as unknown and surfaced as 500.
func ScrapingReturnedError(reason ScrapedReason, carrierMessage string) *Error {
	status := 422
	title := "Scraping error"
	message := carrierMessage

	switch reason {
	case ReasonParcelNotFound:
		title = "Parcel not found"
	case ReasonInvalidTrackingCode:
		title = "Invalid tracking code"
	case ReasonRateLimiting:
		title = "Rate limited by carrier"
		if message == "" {
			message = "the carrier is rate limiting this request, please retry later"
		}
	case ReasonBlocked:
		title = "Blocked by carrier"
		if message == "" {
			message = "the carrier blocked this request, please retry later"
		}
	case ReasonProxyTimeout:
		title = "Proxy timeout"
		status = 500
	default:
		status = 500
		title = "Unknown scraping error"
	}

	return &Error{Kind: KindScrapingReturnedError, Title: title, Message: message, Status: status, Reason: reason}
}

// ScrapingBrowserError wraps an unexpected driver crash. Callers should
// log the full cause (backtrace-equivalent) before this crosses the API
// boundary; only Title/Message reach the user.
func ScrapingBrowserError(cause error) *Error {
	return Wrap(KindScrapingBrowserError, "Scraping failed", "an unexpected error occurred while scraping", 500, cause)
}

// ServerOverwhelmed reports Scraping Pool admission timeout.
func ServerOverwhelmed() *Error {
	return New(KindServerOverwhelmed, "Server overwhelmed", "too many concurrent scrapes in flight, please retry later", 503)
}

// DatabaseError wraps a persistence failure.
func DatabaseError(cause error) *Error {
	return Wrap(KindDatabaseError, "Database error", "a storage error occurred", 500, cause)
}

// ScrapingJsNotFound reports a missing carrier script at process init.
func ScrapingJsNotFound(carrierID string) *Error {
	return New(KindScrapingJsNotFound, "Scraping script not found", fmt.Sprintf("no scraping script registered for carrier %q", carrierID), 500)
}

func NotFound(what string) *Error {
	return New(KindNotFound, "Not found", what, 404)
}

func Conflict(what string) *Error {
	return New(KindConflict, "Conflict", what, 422)
}

// As attempts to view a generic error as an *Error, wrapping it into an
// internal error if it isn't already one. Mirrors the teacher's
// `respondError` fallback in api/handler/scrape.go.
func As(err error) *Error {
	var e *Error
	if ok := errorsAs(err, &e); ok {
		return e
	}
	return Wrap(KindDatabaseError, "Internal error", err.Error(), 500, err)
}

// errorsAs walks err's Unwrap chain by hand looking for an *Error, so this
// file needs no import of the "errors" package.
func errorsAs(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
