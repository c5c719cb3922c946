package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organlink/organlink/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepoPG(pool *pgxpool.Pool) Repository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const userColumns = `id, role, COALESCE(full_name, ''), COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(blood_group, ''), organ_types, verified, email_verified, hospital_id, created_at, updated_at`

func (r *userRepoPG) Create(ctx context.Context, u *UserRecord) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.OrganTypes == nil {
		u.OrganTypes = []string{}
	}

	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO user_record (
			id, role, full_name, email, phone, blood_group, organ_types,
			verified, email_verified, hospital_id, created_at, updated_at
		) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12)`,
		u.ID, u.Role, u.FullName, u.Email, u.Phone, u.BloodGroup, u.OrganTypes,
		u.Verified, u.EmailVerified, u.HospitalID, u.CreatedAt, u.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userColumns+` FROM user_record WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*UserRecord, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM user_record WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *UserRecord) error {
	u.UpdatedAt = time.Now().UTC()
	if u.OrganTypes == nil {
		u.OrganTypes = []string{}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE user_record SET
			role = $2, full_name = NULLIF($3, ''), email = NULLIF($4, ''), phone = NULLIF($5, ''),
			blood_group = NULLIF($6, ''), organ_types = $7, verified = $8, email_verified = $9,
			hospital_id = $10, updated_at = $11
		WHERE id = $1`,
		u.ID, u.Role, u.FullName, u.Email, u.Phone, u.BloodGroup, u.OrganTypes,
		u.Verified, u.EmailVerified, u.HospitalID, u.UpdatedAt,
	)
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

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM user_record WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// whereClause renders f as SQL conditions starting at placeholder $1.
func whereClause(f Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Role != "" {
		add(`role = $%d`, f.Role)
	}
	if f.BloodGroup != "" {
		add(`upper(blood_group) = upper($%d)`, f.BloodGroup)
	}
	if f.OrganType != "" {
		add(`EXISTS (SELECT 1 FROM unnest(organ_types) o WHERE lower(o) = lower($%d))`, f.OrganType)
	}
	if f.Verified != nil {
		add(`verified = $%d`, *f.Verified)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(full_name ILIKE $%d OR email ILIKE $%d)`, n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *userRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*UserRecord, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM user_record`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userColumns + ` FROM user_record` + where +
		fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	users, err := collectUsers(rows)
	return users, total, err
}

// QueryByRole returns every record with role, in creation order so
// first-match generation is stable between runs.
func (r *userRepoPG) QueryByRole(ctx context.Context, role string) ([]*UserRecord, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM user_record WHERE role = $1 ORDER BY created_at, id`, role)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func collectUsers(rows pgx.Rows) ([]*UserRecord, error) {
	defer rows.Close()
	users := []*UserRecord{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*UserRecord, error) {
	var u UserRecord
	err := row.Scan(
		&u.ID, &u.Role, &u.FullName, &u.Email, &u.Phone,
		&u.BloodGroup, &u.OrganTypes, &u.Verified, &u.EmailVerified, &u.HospitalID,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
