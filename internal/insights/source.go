package insights

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type pgSource struct {
	pool *pgxpool.Pool
}

// NewSource creates a PostgreSQL backed Source.
func NewSource(pool *pgxpool.Pool) Source {
	return &pgSource{pool: pool}
}

func (s *pgSource) countByStatus(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *pgSource) CountInquiriesByStatus(ctx context.Context) (map[string]int, error) {
	return s.countByStatus(ctx, `SELECT status, COUNT(*) FROM inquiries WHERE deleted_at IS NULL GROUP BY status`)
}

func (s *pgSource) CountQuotationsByStatus(ctx context.Context) (map[string]int, error) {
	return s.countByStatus(ctx, `SELECT status, COUNT(*) FROM quotations GROUP BY status`)
}

func (s *pgSource) CountNegotiationRounds(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM negotiations`).Scan(&count)
	return count, err
}

func (s *pgSource) SumPurchaseOrders(ctx context.Context) (int, float64, error) {
	var count int
	var amount float64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM purchase_orders`).Scan(&count, &amount)
	return count, amount, err
}
