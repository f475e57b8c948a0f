package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MarketplaceName identifies the deployed marketplace when no name is configured.
const MarketplaceName = "emmytech"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrIncorrectPayment = errors.New("payment must equal the product price")
	ErrAlreadyPurchased = errors.New("product already purchased")
	ErrSelfPurchase     = errors.New("owner cannot purchase own product")
)

// Address is an opaque caller identity supplied by the environment.
type Address string

func (a Address) String() string {
	return string(a)
}

// Valid reports whether the address is non-empty.
func (a Address) Valid() bool {
	return strings.TrimSpace(string(a)) != ""
}

// Product represents a listed product. ID and Price never change after creation,
// Owner and Purchased change exactly once on purchase.
type Product struct {
	ID        uint64
	Name      string
	Price     int64
	Owner     Address
	Purchased bool
}

// NewProduct validates the listing and builds an unpurchased product owned by the seller.
func NewProduct(id uint64, name string, price int64, seller Address) (*Product, error) {
	if err := ValidateListing(name, price, seller); err != nil {
		return nil, err
	}
	return &Product{
		ID:    id,
		Name:  name,
		Price: price,
		Owner: seller,
	}, nil
}

// ValidateListing checks creation input without allocating an id.
func ValidateListing(name string, price int64, seller Address) error {
	if name == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if price <= 0 {
		return fmt.Errorf("%w: product price must be positive", ErrInvalidInput)
	}
	if !seller.Valid() {
		return fmt.Errorf("%w: seller address is required", ErrInvalidInput)
	}
	return nil
}

// CheckPurchase applies the purchase rules in order: exact payment, not yet
// purchased, buyer is not the current owner. Existence is the caller's concern.
func (p *Product) CheckPurchase(buyer Address, payment int64) error {
	if payment != p.Price {
		return fmt.Errorf("%w: got %d, want %d", ErrIncorrectPayment, payment, p.Price)
	}
	if p.Purchased {
		return fmt.Errorf("%w: product %d", ErrAlreadyPurchased, p.ID)
	}
	if buyer == p.Owner {
		return fmt.Errorf("%w: product %d", ErrSelfPurchase, p.ID)
	}
	return nil
}

// Sold returns the post-purchase snapshot. The receiver is left untouched so
// stores can stage the change and commit it only after funds settle.
func (p Product) Sold(buyer Address) Product {
	p.Owner = buyer
	p.Purchased = true
	return p
}
