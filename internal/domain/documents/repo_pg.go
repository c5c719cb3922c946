package documents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organlink/organlink/internal/platform/db"
)

type documentRepoPG struct {
	pool *pgxpool.Pool
}

func NewDocumentRepo(pool *pgxpool.Pool) Repository {
	return &documentRepoPG{pool: pool}
}

func (r *documentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const documentColumns = `id, owner_id, kind, file_name, content_type, size, blob_id, status,
	reviewer_id, COALESCE(review_note, ''), uploaded_at, reviewed_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.OwnerID, &d.Kind, &d.FileName, &d.ContentType, &d.Size, &d.BlobID,
		&d.Status, &d.ReviewerID, &d.ReviewNote, &d.UploadedAt, &d.ReviewedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.UploadedAt = time.Now().UTC()
	d.Status = StatusPending
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO document (id, owner_id, kind, file_name, content_type, size, blob_id, status, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.OwnerID, d.Kind, d.FileName, d.ContentType, d.Size, d.BlobID, d.Status, d.UploadedAt,
	)
	return err
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+documentColumns+` FROM document WHERE id = $1`, id))
}

func (r *documentRepoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*Document, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM document WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+documentColumns+` FROM document WHERE `+where+`
		ORDER BY uploaded_at DESC, id LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *documentRepoPG) ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Document, int, error) {
	return r.list(ctx, "owner_id = $1", owner, limit, offset)
}

func (r *documentRepoPG) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*Document, int, error) {
	return r.list(ctx, "status = $1", status, limit, offset)
}

func (r *documentRepoPG) Review(ctx context.Context, id uuid.UUID, rv Review) (*Document, error) {
	d, err := scanDocument(r.conn(ctx).QueryRow(ctx, `
		UPDATE document SET status = $2, reviewer_id = $3, review_note = NULLIF($4, ''), reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+documentColumns,
		id, rv.Status, rv.ReviewerID, rv.Note, rv.At,
	))
	if errors.Is(err, ErrNotFound) {
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrAlreadyReviewed
	}
	return d, err
}

func (r *documentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
