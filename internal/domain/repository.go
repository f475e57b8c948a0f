package domain

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// ProductStore owns the product list. Implementations serialize every
// validate-then-mutate sequence and settle the seller payment in the same unit.
type ProductStore interface {
	Create(ctx context.Context, name string, price int64, seller Address) (*Product, error)
	// Purchase returns the seller that was paid alongside the updated product.
	Purchase(ctx context.Context, id uint64, buyer Address, payment int64) (*Product, Address, error)
	FindByID(ctx context.Context, id uint64) (*Product, error)
	FindAll(ctx context.Context) ([]*Product, error)
	Count(ctx context.Context) (uint64, error)
}

// Ledger holds account balances in the smallest currency unit.
type Ledger interface {
	Credit(ctx context.Context, account Address, amount int64) error
	Balance(ctx context.Context, account Address) (int64, error)
}

// EventPublisher receives product events after a mutation has been committed.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
