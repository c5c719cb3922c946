package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organlink/organlink/internal/platform/db"
)

type credentialRepoPG struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepoPG{pool: pool}
}

func (r *credentialRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *credentialRepoPG) Create(ctx context.Context, c *Credential) error {
	c.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO account (user_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		c.UserID, c.Email, c.PasswordHash, c.CreatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *credentialRepoPG) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	var c Credential
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT user_id, email, password_hash, created_at, last_login
		FROM account WHERE lower(email) = lower($1)`, email,
	).Scan(&c.UserID, &c.Email, &c.PasswordHash, &c.CreatedAt, &c.LastLogin)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepoPG) TouchLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE account SET last_login = $2 WHERE user_id = $1`, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *credentialRepoPG) UpdateEmail(ctx context.Context, userID uuid.UUID, email string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE account SET email = $2 WHERE user_id = $1`, userID, email)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *credentialRepoPG) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM account WHERE user_id = $1`, userID)
	return err
}
