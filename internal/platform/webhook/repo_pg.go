package webhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organlink/organlink/internal/platform/db"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, s.pool)
}

const endpointColumns = `id, url, secret, events, active, COALESCE(created_by, ''), created_at`

func (s *storePG) CreateEndpoint(ctx context.Context, ep *Endpoint) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO webhook_endpoint (id, url, secret, events, active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
		ep.ID, ep.URL, ep.Secret, ep.Events, ep.Active, ep.CreatedBy, ep.CreatedAt,
	)
	return err
}

func (s *storePG) GetEndpoint(ctx context.Context, id uuid.UUID) (*Endpoint, error) {
	return scanEndpoint(s.conn(ctx).QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoint WHERE id = $1`, id))
}

func (s *storePG) ListEndpoints(ctx context.Context) ([]*Endpoint, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoint ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*Endpoint{}
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *storePG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := s.conn(ctx).Exec(ctx, `UPDATE webhook_endpoint SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *storePG) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM webhook_endpoint WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *storePG) RecordDelivery(ctx context.Context, d *Delivery) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO webhook_delivery (
			id, endpoint_id, event_type, topic, attempt, status_code, succeeded, error, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`,
		d.ID, d.EndpointID, d.EventType, d.Topic, d.Attempt, d.StatusCode, d.Succeeded, d.Error,
		d.Duration.Milliseconds(), d.CreatedAt,
	)
	return err
}

func (s *storePG) ListDeliveries(ctx context.Context, endpointID uuid.UUID, limit, offset int) ([]*Delivery, int, error) {
	var total int
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM webhook_delivery WHERE endpoint_id = $1`, endpointID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, endpoint_id, event_type, topic, attempt, status_code, succeeded, COALESCE(error, ''), duration_ms, created_at
		FROM webhook_delivery WHERE endpoint_id = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, endpointID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*Delivery{}
	for rows.Next() {
		var d Delivery
		var ms int64
		if err := rows.Scan(&d.ID, &d.EndpointID, &d.EventType, &d.Topic, &d.Attempt, &d.StatusCode,
			&d.Succeeded, &d.Error, &ms, &d.CreatedAt); err != nil {
			return nil, 0, err
		}
		d.Duration = msToDuration(ms)
		out = append(out, &d)
	}
	return out, total, rows.Err()
}

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Events, &ep.Active, &ep.CreatedBy, &ep.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}
