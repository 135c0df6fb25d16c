package facility

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hfm/hfm/internal/platform/auth"
	"github.com/hfm/hfm/internal/platform/db"
)

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `u.id, u.email, u.full_name, u.phone, u.role, u.is_active, u.created_at, u.updated_at,
	rp.hospital_id, rp.pharmacy_id, rp.region, rp.specialty, rp.license_no`

const userFrom = ` FROM users u LEFT JOIN role_profiles rp ON rp.user_id = u.id`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &role, &u.Active, &u.CreatedAt, &u.UpdatedAt,
		&u.Profile.HospitalID, &u.Profile.PharmacyID, &u.Profile.Region, &u.Profile.Specialty, &u.Profile.LicenseNo)
	if err != nil {
		return nil, err
	}
	if u.Role, err = auth.ParseRole(role); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User, passwordHash string) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, phone, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.Email, passwordHash, u.FullName, u.Phone, u.Role.String(), u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return fmt.Errorf("email %s: %w", u.Email, ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoPG) CreateProfile(ctx context.Context, userID uuid.UUID, p *Profile) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO role_profiles (user_id, hospital_id, pharmacy_id, region, specialty, license_no)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, p.HospitalID, p.PharmacyID, p.Region, p.Specialty, p.LicenseNo,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return invalid("scope", "referenced hospital or pharmacy does not exist")
		}
		return fmt.Errorf("insert role profile: %w", err)
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+userFrom+` WHERE u.id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return u, nil
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email,
	).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// List filters by role, hospital or region. A region matches the user's own
// region profile or the region of their hospital or pharmacy.
func (r *userRepoPG) List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	from := userFrom + `
		LEFT JOIN hospitals h ON h.id = rp.hospital_id
		LEFT JOIN pharmacies ph ON ph.id = rp.pharmacy_id`

	var where []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Role.Valid() {
		add("u.role = ?", f.Role.String())
	}
	if f.HospitalID != uuid.Nil {
		add("rp.hospital_id = ?", f.HospitalID)
	}
	if f.Region != "" {
		add("(rp.region = ? OR h.region = ? OR ph.region = ?)", f.Region)
	}
	if len(where) > 0 {
		from += " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, limit, offset)
	q := `SELECT ` + userCols + from + fmt.Sprintf(` ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *userRepoPG) LookupPrincipal(ctx context.Context, id uuid.UUID) (*auth.UserRecord, error) {
	var rec auth.UserRecord
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT u.id, u.role, u.is_active, rp.hospital_id, rp.pharmacy_id, rp.region
		FROM users u LEFT JOIN role_profiles rp ON rp.user_id = u.id
		WHERE u.id = $1`, id,
	).Scan(&rec.ID, &rec.Role, &rec.Active, &rec.HospitalID, &rec.PharmacyID, &rec.Region)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("user %s: %w", id, auth.ErrUserNotFound)
		}
		return nil, err
	}
	return &rec, nil
}

func (r *userRepoPG) FindCredentials(ctx context.Context, email string) (*auth.Credentials, error) {
	var c auth.Credentials
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, role, password_hash FROM users WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&c.UserID, &c.Role, &c.PasswordHash)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return &c, nil
}

// -- Organization Repository --

type orgRepoPG struct {
	pool *pgxpool.Pool
}

func NewOrgRepo(pool *pgxpool.Pool) OrgRepository {
	return &orgRepoPG{pool: pool}
}

func (r *orgRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const orgCols = `id, name, region, address, phone, created_at, updated_at`

func (r *orgRepoPG) CreateHospital(ctx context.Context, h *Hospital) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitals (id, name, region, address, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		h.ID, h.Name, h.Region, h.Address, h.Phone,
	).Scan(&h.CreatedAt, &h.UpdatedAt)
}

func (r *orgRepoPG) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	var h Hospital
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM hospitals WHERE id = $1`, id).
		Scan(&h.ID, &h.Name, &h.Region, &h.Address, &h.Phone, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("hospital %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &h, nil
}

func (r *orgRepoPG) ListHospitals(ctx context.Context, region string, limit, offset int) ([]*Hospital, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM hospitals WHERE $1 = '' OR region = $1`, region,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orgCols+` FROM hospitals WHERE $1 = '' OR region = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		region, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Hospital
	for rows.Next() {
		var h Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.Region, &h.Address, &h.Phone, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &h)
	}
	return out, total, rows.Err()
}

func (r *orgRepoPG) CreatePharmacy(ctx context.Context, p *Pharmacy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacies (id, name, region, address, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Region, p.Address, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *orgRepoPG) GetPharmacy(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	var p Pharmacy
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM pharmacies WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Region, &p.Address, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("pharmacy %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *orgRepoPG) ListPharmacies(ctx context.Context, region string, limit, offset int) ([]*Pharmacy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM pharmacies WHERE $1 = '' OR region = $1`, region,
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+orgCols+` FROM pharmacies WHERE $1 = '' OR region = $1 ORDER BY name LIMIT $2 OFFSET $3`,
		region, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Pharmacy
	for rows.Next() {
		var p Pharmacy
		if err := rows.Scan(&p.ID, &p.Name, &p.Region, &p.Address, &p.Phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &p)
	}
	return out, total, rows.Err()
}
