package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organlink/organlink/internal/platform/db"
)

type matchStorePG struct {
	pool *pgxpool.Pool
}

func NewMatchStorePG(pool *pgxpool.Pool) Store {
	return &matchStorePG{pool: pool}
}

func (s *matchStorePG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, s.pool)
}

const matchColumns = `id, donor_id, recipient_id, COALESCE(donor_name, ''), COALESCE(recipient_name, ''),
	blood_group, organ_type, score, status, tracking, COALESCE(decided_by, ''), decided_at, created_at, updated_at`

// Upsert relies on match_record_triple_uq. xmax is zero only for a row
// inserted by this statement.
func (s *matchStorePG) Upsert(ctx context.Context, p MatchProposal) (*MatchRecord, bool, error) {
	now := time.Now().UTC()
	row := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO match_record (
			id, donor_id, recipient_id, donor_name, recipient_name, blood_group,
			organ_type, organ_key, score, status, created_at, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, 'Pending', $10, $10)
		ON CONFLICT (donor_id, recipient_id, organ_key) DO UPDATE SET
			donor_name = EXCLUDED.donor_name,
			recipient_name = EXCLUDED.recipient_name,
			blood_group = EXCLUDED.blood_group,
			score = EXCLUDED.score,
			updated_at = EXCLUDED.updated_at
		RETURNING `+matchColumns+`, (xmax = 0)`,
		uuid.New(), p.DonorID, p.RecipientID, p.DonorName, p.RecipientName, p.BloodGroup,
		p.OrganType, OrganKey(p.OrganType), p.Score, now,
	)

	var created bool
	m, err := scanMatch(row, &created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert match %s/%s/%s: %w", p.DonorID, p.RecipientID, p.OrganType, err)
	}
	return m, created, nil
}

func (s *matchStorePG) UpsertAll(ctx context.Context, ps []MatchProposal) ([]Upserted, error) {
	out := make([]Upserted, 0, len(ps))
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		for _, p := range ps {
			m, created, err := s.Upsert(ctx, p)
			if err != nil {
				return err
			}
			out = append(out, Upserted{Record: m, Created: created})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *matchStorePG) GetByID(ctx context.Context, id uuid.UUID) (*MatchRecord, error) {
	return scanMatch(s.conn(ctx).QueryRow(ctx, `SELECT `+matchColumns+` FROM match_record WHERE id = $1`, id))
}

// matchWhere renders f as SQL conditions starting at placeholder $1.
func matchWhere(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add(`status = $%d`, string(f.Status))
	}
	if f.OrganType != "" {
		add(`organ_key = $%d`, OrganKey(f.OrganType))
	}
	if f.BloodGroup != "" {
		add(`upper(blood_group) = upper($%d)`, f.BloodGroup)
	}
	if f.DonorID != nil {
		add(`donor_id = $%d`, *f.DonorID)
	}
	if f.RecipientID != nil {
		add(`recipient_id = $%d`, *f.RecipientID)
	}
	if f.Participant != nil {
		args = append(args, *f.Participant)
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(donor_id = $%d OR recipient_id = $%d)`, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *matchStorePG) List(ctx context.Context, f Filter, limit, offset int) ([]*MatchRecord, int, error) {
	where, args := matchWhere(f)

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM match_record`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + matchColumns + ` FROM match_record` + where +
		fmt.Sprintf(` ORDER BY score DESC, created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := s.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []*MatchRecord{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (s *matchStorePG) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, decidedBy string) (*MatchRecord, error) {
	m, err := scanMatch(s.conn(ctx).QueryRow(ctx, `
		UPDATE match_record SET status = $2, decided_by = NULLIF($3, ''), decided_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'Pending'
		RETURNING `+matchColumns, id, string(to), decidedBy))
	if errors.Is(err, ErrNotFound) {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInvalidTransition
	}
	return m, err
}

func (s *matchStorePG) UpdateTracking(ctx context.Context, id uuid.UUID, t Tracking, entry TimelineEntry) (*MatchRecord, error) {
	t.Timeline = nil
	fields, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	appended, err := json.Marshal([]TimelineEntry{entry})
	if err != nil {
		return nil, err
	}
	return scanMatch(s.conn(ctx).QueryRow(ctx, `
		UPDATE match_record SET
			tracking = $2::jsonb || jsonb_build_object('timeline', COALESCE(tracking->'timeline', '[]'::jsonb) || $3::jsonb),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+matchColumns, id, string(fields), string(appended)))
}

// scanMatch reads matchColumns; extra receives any trailing columns.
func scanMatch(row pgx.Row, extra ...interface{}) (*MatchRecord, error) {
	var m MatchRecord
	var status string
	var tracking []byte
	dest := []interface{}{
		&m.ID, &m.DonorID, &m.RecipientID, &m.DonorName, &m.RecipientName,
		&m.BloodGroup, &m.OrganType, &m.Score, &status, &tracking, &m.DecidedBy, &m.DecidedAt,
		&m.CreatedAt, &m.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Status = Status(status)
	if len(tracking) > 0 {
		if err := json.Unmarshal(tracking, &m.Tracking); err != nil {
			return nil, fmt.Errorf("decode tracking for match %s: %w", m.ID, err)
		}
	}
	return &m, nil
}
