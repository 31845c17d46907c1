// Package insights aggregates pipeline state into a cached summary for
// dashboards.
package insights

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary is a point-in-time aggregate of the sales pipeline.
type Summary struct {
	Inquiries           map[string]int `json:"inquiries"`
	Quotations          map[string]int `json:"quotations"`
	NegotiationRounds   int            `json:"negotiation_rounds"`
	PurchaseOrders      int            `json:"purchase_orders"`
	PurchaseOrderAmount float64        `json:"purchase_order_amount"`
	AmountDisplay       string         `json:"amount_display"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// Source provides the raw aggregates the summary is built from.
type Source interface {
	CountInquiriesByStatus(ctx context.Context) (map[string]int, error)
	CountQuotationsByStatus(ctx context.Context) (map[string]int, error)
	CountNegotiationRounds(ctx context.Context) (int, error)
	SumPurchaseOrders(ctx context.Context) (int, float64, error)
}

// Service builds and caches the pipeline summary. Concurrent requests
// for a cold cache share a single rebuild.
type Service struct {
	source  Source
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
	printer *message.Printer
	now     func() time.Time
}

// NewService wires the insights service.
func NewService(source Source, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:  source,
		cache:   cache,
		logger:  logger,
		printer: message.NewPrinter(language.Indonesian),
		now:     time.Now,
	}
}

// PipelineSummary returns the cached summary, rebuilding it on miss.
func (s *Service) PipelineSummary(ctx context.Context) (*Summary, error) {
	if cached, err := s.cache.Get(ctx); err != nil {
		s.logger.Warn("insights cache read failed", slog.Any("error", err))
	} else if cached != nil {
		return cached, nil
	}

	result, err, _ := s.group.Do("pipeline-summary", func() (interface{}, error) {
		return s.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Summary), nil
}

// Refresh rebuilds the summary unconditionally and stores it.
func (s *Service) Refresh(ctx context.Context) (*Summary, error) {
	summary, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) build(ctx context.Context) (*Summary, error) {
	inquiries, err := s.source.CountInquiriesByStatus(ctx)
	if err != nil {
		return nil, err
	}
	quotations, err := s.source.CountQuotationsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	rounds, err := s.source.CountNegotiationRounds(ctx)
	if err != nil {
		return nil, err
	}
	poCount, poAmount, err := s.source.SumPurchaseOrders(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Inquiries:           inquiries,
		Quotations:          quotations,
		NegotiationRounds:   rounds,
		PurchaseOrders:      poCount,
		PurchaseOrderAmount: poAmount,
		AmountDisplay:       s.printer.Sprintf("Rp %.2f", poAmount),
		GeneratedAt:         s.now(),
	}
	if err := s.cache.Set(ctx, summary); err != nil {
		s.logger.Warn("insights cache write failed", slog.Any("error", err))
	}
	return summary, nil
}
