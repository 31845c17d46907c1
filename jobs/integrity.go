package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/lns-pipeline/lns-pipeline/internal/jobs"
	"github.com/lns-pipeline/lns-pipeline/internal/pipeline"
)

// codeTables are the tables whose code columns must stay unique.
var codeTables = []string{"inquiries", "quotations", "negotiations", "purchase_orders"}

// IntegrityReport summarises one sweep run.
type IntegrityReport struct {
	StartedAt         time.Time           `json:"started_at"`
	Duration          time.Duration       `json:"duration"`
	DuplicateCodes    map[string][]string `json:"duplicate_codes"`
	QuotationsScanned int                 `json:"quotations_scanned"`
	CodesRepaired     int                 `json:"codes_repaired"`
}

// SweepStore provides the queries the sweep needs.
type SweepStore interface {
	DuplicateCodes(ctx context.Context, table string) ([]string, error)
	QuotationIDs(ctx context.Context) ([]int64, error)
}

// Recomputer re-derives one quotation code, reporting whether a write
// happened.
type Recomputer interface {
	RecomputeQuotationCode(ctx context.Context, quotationID int64) (string, bool, error)
}

// IntegritySweeper walks the pipeline tables looking for duplicate codes
// and quotation codes that drifted from their derivation.
type IntegritySweeper struct {
	store      SweepStore
	recomputer Recomputer
	metrics    *jobmetrics.Metrics
	logger     *slog.Logger
}

// NewIntegritySweeper wires the sweeper. metrics may be nil.
func NewIntegritySweeper(store SweepStore, recomputer Recomputer, metrics *jobmetrics.Metrics, logger *slog.Logger) *IntegritySweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntegritySweeper{store: store, recomputer: recomputer, metrics: metrics, logger: logger}
}

// Run executes one sweep. With dryRun set only the duplicate scan runs.
func (s *IntegritySweeper) Run(ctx context.Context, dryRun bool) (*IntegrityReport, error) {
	started := time.Now()
	report := &IntegrityReport{
		StartedAt:      started,
		DuplicateCodes: map[string][]string{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, table := range codeTables {
		table := table
		g.Go(func() error {
			duplicates, err := s.store.DuplicateCodes(gctx, table)
			if err != nil {
				return fmt.Errorf("duplicate scan %s: %w", table, err)
			}
			if len(duplicates) > 0 {
				mu.Lock()
				report.DuplicateCodes[table] = duplicates
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for table, duplicates := range report.DuplicateCodes {
		s.logger.Warn("duplicate codes found",
			slog.String("table", table),
			slog.Int("count", len(duplicates)))
	}

	if dryRun || s.recomputer == nil {
		report.Duration = time.Since(started)
		return report, nil
	}

	ids, err := s.store.QuotationIDs(ctx)
	if err != nil {
		return nil, err
	}
	report.QuotationsScanned = len(ids)
	for _, id := range ids {
		code, changed, err := s.recomputer.RecomputeQuotationCode(ctx, id)
		if err != nil {
			// deleted between enumeration and recompute
			if errors.Is(err, pipeline.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("recompute quotation %d: %w", id, err)
		}
		if changed {
			report.CodesRepaired++
			s.logger.Info("quotation code repaired",
				slog.Int64("quotation_id", id),
				slog.String("code", code))
		}
	}

	report.Duration = time.Since(started)
	return report, nil
}

// HandleTask adapts the sweeper to an asynq handler.
func (s *IntegritySweeper) HandleTask(ctx context.Context, t *asynq.Task) error {
	var payload CodeIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := s.metrics.Track("code_integrity_sweep")
	report, err := s.Run(ctx, payload.DryRun)
	if err != nil {
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	s.metrics.AddRepairs("quotations", report.CodesRepaired)
	s.logger.Info("code integrity sweep finished",
		slog.Int("quotations_scanned", report.QuotationsScanned),
		slog.Int("codes_repaired", report.CodesRepaired),
		slog.Duration("duration", report.Duration))
	return nil
}

// pgSweepStore is the PostgreSQL SweepStore.
type pgSweepStore struct {
	pool *pgxpool.Pool
}

// NewSweepStore creates a PostgreSQL backed SweepStore.
func NewSweepStore(pool *pgxpool.Pool) SweepStore {
	return &pgSweepStore{pool: pool}
}

func (s *pgSweepStore) DuplicateCodes(ctx context.Context, table string) ([]string, error) {
	valid := false
	for _, known := range codeTables {
		if table == known {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("unknown table %q", table)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT code FROM %s GROUP BY code HAVING COUNT(*) > 1`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *pgSweepStore) QuotationIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM quotations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
