package dto

import (
	"time"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
)

// CreateProductRequest represents the request to list a product
type CreateProductRequest struct {
	Name  string `json:"name" validate:"required"`
	Price int64  `json:"price" validate:"gt=0"`
}

// PurchaseProductRequest carries the payment tendered by the buyer
type PurchaseProductRequest struct {
	Payment int64 `json:"payment"`
}

// ProductResponse represents the product response
type ProductResponse struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Owner     string `json:"owner"`
	Purchased bool   `json:"purchased"`
}

// MarketplaceResponse describes the marketplace instance
type MarketplaceResponse struct {
	Name         string `json:"name"`
	ProductCount uint64 `json:"product_count"`
}

// BalanceResponse reports an account balance
type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// EventResponse represents a recorded product event
type EventResponse struct {
	ID         string           `json:"event_id"`
	Type       string           `json:"type"`
	Product    *ProductResponse `json:"product"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// ToProductResponse converts a domain Product to ProductResponse
func ToProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Owner:     p.Owner.String(),
		Purchased: p.Purchased,
	}
}

// ToProductResponseList converts a list of domain Products to ProductResponse list
func ToProductResponseList(products []*domain.Product) []*ProductResponse {
	responses := make([]*ProductResponse, len(products))
	for i, p := range products {
		responses[i] = ToProductResponse(p)
	}
	return responses
}

// ToEventResponseList converts recorded events to responses
func ToEventResponseList(events []domain.Event) []*EventResponse {
	responses := make([]*EventResponse, len(events))
	for i := range events {
		responses[i] = &EventResponse{
			ID:         events[i].ID.String(),
			Type:       string(events[i].Type),
			Product:    ToProductResponse(&events[i].Product),
			OccurredAt: events[i].OccurredAt,
		}
	}
	return responses
}
