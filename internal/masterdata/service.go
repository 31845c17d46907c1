package masterdata

import (
	"context"
	"errors"
	"strings"
)

var ErrInvalidInput = errors.New("invalid input")

type service struct {
	repo Repository
}

// NewService creates the master data service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, filters)
}

func (s *service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *service) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	customer.Code = normalizeCode(customer.Code)
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Code == "" || customer.Name == "" {
		return Customer{}, ErrInvalidInput
	}
	return s.repo.CreateCustomer(ctx, customer)
}

func (s *service) UpdateCustomer(ctx context.Context, id int64, customer Customer) error {
	customer.Code = normalizeCode(customer.Code)
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Code == "" || customer.Name == "" {
		return ErrInvalidInput
	}
	return s.repo.UpdateCustomer(ctx, id, customer)
}

func (s *service) DeleteCustomer(ctx context.Context, id int64) error {
	return s.repo.DeleteCustomer(ctx, id)
}

func (s *service) ListBusinessUnits(ctx context.Context, filters ListFilters) ([]BusinessUnit, int, error) {
	return s.repo.ListBusinessUnits(ctx, filters)
}

func (s *service) GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error) {
	return s.repo.GetBusinessUnit(ctx, id)
}

func (s *service) CreateBusinessUnit(ctx context.Context, unit BusinessUnit) (BusinessUnit, error) {
	unit.Code = normalizeCode(unit.Code)
	unit.Name = strings.TrimSpace(unit.Name)
	if unit.Code == "" || unit.Name == "" {
		return BusinessUnit{}, ErrInvalidInput
	}
	return s.repo.CreateBusinessUnit(ctx, unit)
}

func (s *service) UpdateBusinessUnit(ctx context.Context, id int64, unit BusinessUnit) error {
	unit.Code = normalizeCode(unit.Code)
	unit.Name = strings.TrimSpace(unit.Name)
	if unit.Code == "" || unit.Name == "" {
		return ErrInvalidInput
	}
	return s.repo.UpdateBusinessUnit(ctx, id, unit)
}

func (s *service) DeleteBusinessUnit(ctx context.Context, id int64) error {
	return s.repo.DeleteBusinessUnit(ctx, id)
}
