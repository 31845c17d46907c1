package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate code")
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL backed master data repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func mapUniqueError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func listClauses(filters ListFilters, searchColumns string) (string, []interface{}, int) {
	where := "WHERE TRUE"
	var args []interface{}
	argPos := 1

	if filters.Search != "" {
		where += fmt.Sprintf(" AND (%s) ILIKE $%d", searchColumns, argPos)
		args = append(args, "%"+filters.Search+"%")
		argPos++
	}
	if filters.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argPos)
		args = append(args, *filters.IsActive)
		argPos++
	}
	return where, args, argPos
}

func pageBounds(filters ListFilters) (int, int) {
	limit := filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// ============================================================================
// CUSTOMERS
// ============================================================================

func (r *repository) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	where, args, argPos := listClauses(filters, "code || ' ' || name")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM customers "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filters)
	query := fmt.Sprintf(`
		SELECT id, code, name, phone, email, address, is_active, created_at, updated_at
		FROM customers %s
		ORDER BY name LIMIT $%d OFFSET $%d
	`, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, phone, email, address, is_active, created_at, updated_at
		FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *repository) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (code, name, phone, email, address, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, customer.Code, customer.Name, customer.Phone, customer.Email, customer.Address, customer.IsActive).
		Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		return Customer{}, mapUniqueError(err)
	}
	return customer, nil
}

func (r *repository) UpdateCustomer(ctx context.Context, id int64, customer Customer) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET code = $1, name = $2, phone = $3, email = $4, address = $5, is_active = $6, updated_at = NOW()
		WHERE id = $7
	`, customer.Code, customer.Name, customer.Phone, customer.Email, customer.Address, customer.IsActive, id)
	if err != nil {
		return mapUniqueError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteCustomer(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// BUSINESS UNITS
// ============================================================================

func (r *repository) ListBusinessUnits(ctx context.Context, filters ListFilters) ([]BusinessUnit, int, error) {
	where, args, argPos := listClauses(filters, "code || ' ' || name")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM business_units "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filters)
	query := fmt.Sprintf(`
		SELECT id, code, name, is_active, created_at, updated_at
		FROM business_units %s
		ORDER BY code LIMIT $%d OFFSET $%d
	`, where, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var units []BusinessUnit
	for rows.Next() {
		var u BusinessUnit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		units = append(units, u)
	}
	return units, total, rows.Err()
}

func (r *repository) GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error) {
	var u BusinessUnit
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, is_active, created_at, updated_at
		FROM business_units WHERE id = $1
	`, id).Scan(&u.ID, &u.Code, &u.Name, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BusinessUnit{}, ErrNotFound
	}
	return u, err
}

func (r *repository) CreateBusinessUnit(ctx context.Context, unit BusinessUnit) (BusinessUnit, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO business_units (code, name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, unit.Code, unit.Name, unit.IsActive).Scan(&unit.ID, &unit.CreatedAt, &unit.UpdatedAt)
	if err != nil {
		return BusinessUnit{}, mapUniqueError(err)
	}
	return unit, nil
}

func (r *repository) UpdateBusinessUnit(ctx context.Context, id int64, unit BusinessUnit) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE business_units
		SET code = $1, name = $2, is_active = $3, updated_at = NOW()
		WHERE id = $4
	`, unit.Code, unit.Name, unit.IsActive, id)
	if err != nil {
		return mapUniqueError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteBusinessUnit(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE business_units SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
