package masterdata

import (
	"context"
	"time"
)

// ListFilters represents standard list page filters
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	IsActive *bool
}

// Customer represents a customer entity
type Customer struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusinessUnit represents an internal business unit
type BusinessUnit struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository interface for master data operations
type Repository interface {
	ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, id int64, customer Customer) error
	DeleteCustomer(ctx context.Context, id int64) error

	ListBusinessUnits(ctx context.Context, filters ListFilters) ([]BusinessUnit, int, error)
	GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error)
	CreateBusinessUnit(ctx context.Context, unit BusinessUnit) (BusinessUnit, error)
	UpdateBusinessUnit(ctx context.Context, id int64, unit BusinessUnit) error
	DeleteBusinessUnit(ctx context.Context, id int64) error
}

// Service interface for master data business logic
type Service interface {
	ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, id int64, customer Customer) error
	DeleteCustomer(ctx context.Context, id int64) error

	ListBusinessUnits(ctx context.Context, filters ListFilters) ([]BusinessUnit, int, error)
	GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error)
	CreateBusinessUnit(ctx context.Context, unit BusinessUnit) (BusinessUnit, error)
	UpdateBusinessUnit(ctx context.Context, id int64, unit BusinessUnit) error
	DeleteBusinessUnit(ctx context.Context, id int64) error
}
