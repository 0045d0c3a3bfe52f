package store

import (
	"context"
	"encoding/json"

	"github.com/openparcel/openparcel/models"
)

// ListProxies implements proxymgr.Repository.
func (s *Store) ListProxies(ctx context.Context) ([]*models.Proxy, error) {
	return s.queryProxies(ctx, `SELECT id, address, port, protocol, country, speed_ms, active, valid_carriers FROM proxies`)
}

// ListActiveProxies implements proxymgr.Repository.
func (s *Store) ListActiveProxies(ctx context.Context) ([]*models.Proxy, error) {
	return s.queryProxies(ctx, `SELECT id, address, port, protocol, country, speed_ms, active, valid_carriers FROM proxies WHERE active`)
}

func (s *Store) queryProxies(ctx context.Context, query string) ([]*models.Proxy, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Proxy
	for rows.Next() {
		var p models.Proxy
		var raw []byte
		if err := rows.Scan(&p.ID, &p.Address, &p.Port, &p.Protocol, &p.Country, &p.SpeedMs, &p.Active, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &p.ValidCarriers)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ProxyExists implements proxymgr.Repository: true if a proxy with this
// (address, port, protocol) natural key is already stored, mirroring
// Proxy.is_duplicate() in the original implementation's provider import.
func (s *Store) ProxyExists(ctx context.Context, addr string, port int, proto models.ProxyProtocol) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM proxies WHERE address = $1 AND port = $2 AND protocol = $3)`,
		addr, port, proto,
	).Scan(&exists)
	return exists, err
}

// SaveProxy implements proxymgr.Repository.
func (s *Store) SaveProxy(ctx context.Context, p *models.Proxy) error {
	raw, err := json.Marshal(p.ValidCarriers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE proxies SET active = $2, valid_carriers = $3, speed_ms = $4 WHERE id = $1`,
		p.ID, p.Active, raw, p.SpeedMs)
	return err
}

// InsertProxy implements proxymgr.Repository.
func (s *Store) InsertProxy(ctx context.Context, p *models.Proxy) error {
	raw, err := json.Marshal(p.ValidCarriers)
	if err != nil {
		return err
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO proxies (address, port, protocol, country, speed_ms, active, valid_carriers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (address, port, protocol) DO UPDATE SET country = EXCLUDED.country
		 RETURNING id`,
		p.Address, p.Port, p.Protocol, p.Country, p.SpeedMs, p.Active, raw,
	).Scan(&p.ID)
}
