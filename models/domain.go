// Package models holds the domain types shared across every component:
// Parcel, HistorySnapshot, UserParcelLink, Proxy, User and AuthToken
// (spec §3), plus the wire-facing request/response shapes for the HTTP
// API (spec §6).
package models

import (
	"strconv"
	"time"
)

// Parcel is the immutable (carrier_id, tracking_code) identity plus the
// mutable bookkeeping fields a scrape cycle updates.
type Parcel struct {
	ID            int64
	CarrierID     string
	TrackingCode  string
	Slug          string
	Created       time.Time
	LastUpdated   time.Time
}

// Outdated reports whether the parcel is older than the carrier's
// maximum useful tracking window.
func (p *Parcel) Outdated(outdatedPeriodDays int, now time.Time) bool {
	return now.Sub(p.Created) > time.Duration(outdatedPeriodDays)*24*time.Hour
}

// Similar implements spec §4.3's identity comparison: two parcels are
// similar when both slugs are present and equal, or when carrier+code
// match. Used by the Scraping Pool to detect coalescing candidates.
func (p *Parcel) Similar(other *Parcel) bool {
	if p == nil || other == nil {
		return false
	}
	if p.Slug != "" && other.Slug != "" && p.Slug == other.Slug {
		return true
	}
	return p.CarrierID == other.CarrierID && p.TrackingCode == other.TrackingCode
}

// HistorySnapshot is an immutable, append-only scrape result.
type HistorySnapshot struct {
	ID        int64
	ParcelID  int64
	Retrieved time.Time
	Data      []byte // opaque normalized JSON payload
}

// TrackingEvent is one entry inside a HistorySnapshot's normalized payload.
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Location    string    `json:"location,omitempty"`
	StatusCode  string    `json:"status_code"`
	Description string    `json:"description"`
}

// History is the decoded shape of HistorySnapshot.Data.
type History struct {
	Events       []TrackingEvent   `json:"events"`
	CarrierMeta  map[string]string `json:"carrier_meta,omitempty"`
}

// UserParcelLink ties a user to a parcel with a user-chosen name and an
// archived flag. Unique per (UserID, ParcelID); cascades on parcel delete.
type UserParcelLink struct {
	UserID    int64
	ParcelID  int64
	Name      string
	Archived  bool
}

// ProxyProtocol is one of the supported outbound proxy protocols.
type ProxyProtocol string

const (
	ProxyHTTP   ProxyProtocol = "http"
	ProxySocks4 ProxyProtocol = "socks4"
	ProxySocks5 ProxyProtocol = "socks5"
)

// ValidCarrier records that a proxy successfully contacted a carrier
// during its last test, and how long that took.
type ValidCarrier struct {
	CarrierID string
	TimingMs  int64
}

// Proxy is the persisted outbound proxy row (C4).
type Proxy struct {
	ID            int64
	Address       string
	Port          int
	Protocol      ProxyProtocol
	Country       string
	SpeedMs       int64
	Active        bool
	ValidCarriers []ValidCarrier
}

// URL renders the proxy as a dial-able URL, e.g. "socks5://1.2.3.4:1080".
func (p *Proxy) URL() string {
	return string(p.Protocol) + "://" + p.Address + ":" + strconv.Itoa(p.Port)
}

// AccessLevel is a user's numeric privilege level. Per spec §9's Open
// Question resolution, superuser status is access_level >= 100; the
// `user_id == 1` shortcut some sources use is not honored here.
type AccessLevel int

const SuperuserAccessLevel AccessLevel = 100

// IsSuperuser reports whether this access level grants superuser rights.
func (a AccessLevel) IsSuperuser() bool { return a >= SuperuserAccessLevel }

// User is the interface-only collaborator described in spec §3: the
// core only needs "given a credential, return an identity or fail".
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
	Salt         []byte
	AccessLevel  AccessLevel
}

// AuthToken is a long random credential bound to a user.
type AuthToken struct {
	Token       string
	UserID      int64
	Description string
	Active      bool
}
