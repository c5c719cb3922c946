package hospital

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

// -- Hospital Repository --

type hospitalRepoPG struct {
	pool *pgxpool.Pool
}

func NewHospitalRepo(pool *pgxpool.Pool) HospitalRepository {
	return &hospitalRepoPG{pool: pool}
}

func (r *hospitalRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const hospitalColumns = `id, name, COALESCE(city, ''), COALESCE(state, ''), COALESCE(phone, ''),
	COALESCE(email, ''), active, created_at, updated_at`

func (r *hospitalRepoPG) Create(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO hospital (id, name, city, state, phone, email, active, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`,
		h.ID, h.Name, h.City, h.State, h.Phone, h.Email, h.Active, h.CreatedAt, h.UpdatedAt,
	)
	return err
}

func (r *hospitalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	return scanHospital(r.conn(ctx).QueryRow(ctx, `SELECT `+hospitalColumns+` FROM hospital WHERE id = $1`, id))
}

func (r *hospitalRepoPG) Update(ctx context.Context, h *Hospital) error {
	h.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospital SET
			name = $2, city = NULLIF($3, ''), state = NULLIF($4, ''), phone = NULLIF($5, ''),
			email = NULLIF($6, ''), active = $7, updated_at = $8
		WHERE id = $1`,
		h.ID, h.Name, h.City, h.State, h.Phone, h.Email, h.Active, h.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *hospitalRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM hospital WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *hospitalRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Hospital, int, error) {
	var conds []string
	var args []interface{}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf(`(name ILIKE $%d OR city ILIKE $%d)`, len(args), len(args)))
	}
	if f.City != "" {
		args = append(args, f.City)
		conds = append(conds, fmt.Sprintf(`lower(city) = lower($%d)`, len(args)))
	}
	if f.ActiveOnly {
		conds = append(conds, `active`)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+hospitalColumns+` FROM hospital`+where+
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2), append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	hospitals := []*Hospital{}
	for rows.Next() {
		h, err := scanHospital(rows)
		if err != nil {
			return nil, 0, err
		}
		hospitals = append(hospitals, h)
	}
	return hospitals, total, rows.Err()
}

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.City, &h.State, &h.Phone, &h.Email, &h.Active, &h.CreatedAt, &h.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// -- Department Repository --

type deptRepoPG struct {
	pool *pgxpool.Pool
}

func NewDepartmentRepo(pool *pgxpool.Pool) DepartmentRepository {
	return &deptRepoPG{pool: pool}
}

func (r *deptRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const deptColumns = `id, hospital_id, name, head_doctor_id, active, created_at`

func (r *deptRepoPG) Create(ctx context.Context, d *Department) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO department (id, hospital_id, name, head_doctor_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.HospitalID, d.Name, d.HeadDoctorID, d.Active, d.CreatedAt,
	)
	return err
}

func (r *deptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	return scanDept(r.conn(ctx).QueryRow(ctx, `SELECT `+deptColumns+` FROM department WHERE id = $1`, id))
}

func (r *deptRepoPG) Update(ctx context.Context, d *Department) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE department SET name = $2, head_doctor_id = $3, active = $4 WHERE id = $1`,
		d.ID, d.Name, d.HeadDoctorID, d.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *deptRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM department WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *deptRepoPG) ListByHospital(ctx context.Context, hospitalID uuid.UUID, limit, offset int) ([]*Department, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM department WHERE hospital_id = $1`, hospitalID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+deptColumns+` FROM department WHERE hospital_id = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		hospitalID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	depts := []*Department{}
	for rows.Next() {
		d, err := scanDept(rows)
		if err != nil {
			return nil, 0, err
		}
		depts = append(depts, d)
	}
	return depts, total, rows.Err()
}

func scanDept(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.HospitalID, &d.Name, &d.HeadDoctorID, &d.Active, &d.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
