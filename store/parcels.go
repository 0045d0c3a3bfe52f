package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openparcel/openparcel/models"
)

// GetParcelByCarrierAndCode implements freshnesscache.Repository.
func (s *Store) GetParcelByCarrierAndCode(ctx context.Context, carrierID, trackingCode string) (*models.Parcel, bool, error) {
	return s.scanParcel(ctx,
		`SELECT id, carrier_id, tracking_code, slug, created, last_updated
		 FROM parcels WHERE carrier_id = $1 AND tracking_code = $2`,
		carrierID, trackingCode)
}

// GetParcelBySlug implements freshnesscache.Repository.
func (s *Store) GetParcelBySlug(ctx context.Context, slug string) (*models.Parcel, bool, error) {
	return s.scanParcel(ctx,
		`SELECT id, carrier_id, tracking_code, slug, created, last_updated
		 FROM parcels WHERE slug = $1`,
		slug)
}

func (s *Store) scanParcel(ctx context.Context, query string, args ...any) (*models.Parcel, bool, error) {
	var p models.Parcel
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.CarrierID, &p.TrackingCode, &p.Slug, &p.Created, &p.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// InsertParcel creates a new parcel row, assigning p.ID.
func (s *Store) InsertParcel(ctx context.Context, p *models.Parcel) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO parcels (carrier_id, tracking_code, slug, created, last_updated)
		 VALUES ($1, $2, $3, now(), now()) RETURNING id, created, last_updated`,
		p.CarrierID, p.TrackingCode, p.Slug,
	).Scan(&p.ID, &p.Created, &p.LastUpdated)
}

// TouchParcel bumps last_updated after a fresh scrape.
func (s *Store) TouchParcel(ctx context.Context, parcelID int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE parcels SET last_updated = now() WHERE id = $1`, parcelID)
	return err
}

// LatestHistory implements freshnesscache.Repository.
func (s *Store) LatestHistory(ctx context.Context, parcelID int64) (*models.History, time.Time, error) {
	var raw []byte
	var retrieved time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT data, retrieved FROM history_cache WHERE parcel_id = $1 ORDER BY retrieved DESC LIMIT 1`,
		parcelID,
	).Scan(&raw, &retrieved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	var hist models.History
	if err := json.Unmarshal(raw, &hist); err != nil {
		return nil, time.Time{}, err
	}
	return &hist, retrieved, nil
}

// InsertHistory appends a new, immutable scrape snapshot.
func (s *Store) InsertHistory(ctx context.Context, parcelID int64, hist *models.History) error {
	raw, err := json.Marshal(hist)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO history_cache (parcel_id, retrieved, data) VALUES ($1, now(), $2)`,
		parcelID, raw)
	return err
}

// IsArchived implements freshnesscache.Repository.
func (s *Store) IsArchived(ctx context.Context, userID, parcelID int64) (bool, error) {
	var archived bool
	err := s.pool.QueryRow(ctx,
		`SELECT archived FROM user_parcels WHERE user_id = $1 AND parcel_id = $2`,
		userID, parcelID,
	).Scan(&archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return archived, err
}

// GetLinkName returns the user-chosen display name for a parcel link, if
// the user has saved one.
func (s *Store) GetLinkName(ctx context.Context, userID, parcelID int64) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT name FROM user_parcels WHERE user_id = $1 AND parcel_id = $2`,
		userID, parcelID,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// ErrAlreadyLinked reports that a user already has a link to a parcel
// (spec §8: "save then save on the same (user, parcel) -> 422 on the
// second").
var ErrAlreadyLinked = errors.New("store: user already has a link to this parcel")

// ErrArchiveUnchanged reports that an archive toggle was a no-op (the
// link was already in the requested archived state).
var ErrArchiveUnchanged = errors.New("store: archived flag already in the requested state")

// SaveLink inserts a new user-parcel link (spec's POST /save/...
// endpoint). A second save of the same (user, parcel) pair is rejected
// with ErrAlreadyLinked rather than silently upserting, per spec §8's
// idempotence test.
func (s *Store) SaveLink(ctx context.Context, link *models.UserParcelLink) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_parcels (user_id, parcel_id, name, archived)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, parcel_id) DO NOTHING`,
		link.UserID, link.ParcelID, link.Name, link.Archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyLinked
	}
	return nil
}

// DeleteLink removes a user's link to a parcel (DELETE /save/...).
func (s *Store) DeleteLink(ctx context.Context, userID, parcelID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_parcels WHERE user_id = $1 AND parcel_id = $2`, userID, parcelID)
	return err
}

// SetArchived implements POST|DELETE /archive/<slug>. A toggle that
// would not change anything (POST while already archived, or DELETE
// while already unarchived) returns ErrArchiveUnchanged rather than
// silently succeeding, per spec §8's "two successive POSTs -> 422 on the
// second" idempotence test.
func (s *Store) SetArchived(ctx context.Context, userID, parcelID int64, archived bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_parcels SET archived = $3
		 WHERE user_id = $1 AND parcel_id = $2 AND archived != $3`,
		userID, parcelID, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrArchiveUnchanged
	}
	return nil
}

// ParcelRow is one row of the joined listing query; handler.ParcelRow
// mirrors its shape so the handler package doesn't need to import store
// directly.
type ParcelRow struct {
	models.UserParcelLink
	Parcel       models.Parcel
	LatestStatus string
}

// ListParcelsForUser implements GET /parcels, including its
// SPEC_FULL.md pagination supplement (offset/limit, limit capped at 200
// the way the teacher's BatchRequest bounds min=1,max=100).
func (s *Store) ListParcelsForUser(ctx context.Context, userID int64, offset, limit int) ([]ParcelRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM user_parcels WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.carrier_id, p.tracking_code, p.slug, p.created, p.last_updated,
		       up.name, up.archived,
		       COALESCE((
		           SELECT h.data->>'latest_status' FROM history_cache h
		           WHERE h.parcel_id = p.id ORDER BY h.retrieved DESC LIMIT 1
		       ), '')
		FROM user_parcels up
		JOIN parcels p ON p.id = up.parcel_id
		WHERE up.user_id = $1
		ORDER BY p.last_updated DESC
		OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ParcelRow
	for rows.Next() {
		var r ParcelRow
		if err := rows.Scan(&r.Parcel.ID, &r.Parcel.CarrierID, &r.Parcel.TrackingCode, &r.Parcel.Slug,
			&r.Parcel.Created, &r.Parcel.LastUpdated, &r.UserParcelLink.Name, &r.UserParcelLink.Archived,
			&r.LatestStatus); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
