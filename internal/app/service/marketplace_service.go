package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mrops-br/emmytech-marketplace/internal/app/dto"
	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// EventHistory exposes events the store has published.
type EventHistory interface {
	Events() []domain.Event
}

// MarketplaceService handles listing and purchase use cases
type MarketplaceService struct {
	name                    string
	store                   domain.ProductStore
	ledger                  domain.Ledger
	history                 EventHistory
	tracer                  trace.Tracer
	logger                  *slog.Logger
	productCreatedCounter   metric.Int64Counter
	productPurchasedCounter metric.Int64Counter
	operations              metric.Int64Counter
}

// NewMarketplaceService creates a new marketplace service
func NewMarketplaceService(
	name string,
	store domain.ProductStore,
	ledger domain.Ledger,
	history EventHistory,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *MarketplaceService {
	// Initialize metrics
	productCreatedCounter, _ := meter.Int64Counter(
		"marketplace.products.created",
		metric.WithDescription("Total number of products listed"),
	)

	productPurchasedCounter, _ := meter.Int64Counter(
		"marketplace.products.purchased",
		metric.WithDescription("Total number of products sold"),
	)

	operations, _ := meter.Int64Counter(
		"marketplace.operations",
		metric.WithDescription("Total number of marketplace operations"),
	)

	return &MarketplaceService{
		name:                    name,
		store:                   store,
		ledger:                  ledger,
		history:                 history,
		tracer:                  tracer,
		logger:                  logger,
		productCreatedCounter:   productCreatedCounter,
		productPurchasedCounter: productPurchasedCounter,
		operations:              operations,
	}
}

// Name returns the marketplace instance name
func (s *MarketplaceService) Name() string {
	return s.name
}

// Info returns the marketplace name and current product count
func (s *MarketplaceService) Info(ctx context.Context) (*dto.MarketplaceResponse, error) {
	count, err := s.ProductCount(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.MarketplaceResponse{Name: s.name, ProductCount: count}, nil
}

// ProductCount returns the number of products ever created
func (s *MarketplaceService) ProductCount(ctx context.Context) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "MarketplaceService.ProductCount")
	defer span.End()

	count, err := s.store.Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to read product count")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("product.count", int64(count)))
	return count, nil
}

// CreateProduct lists a new product owned by caller
func (s *MarketplaceService) CreateProduct(ctx context.Context, caller domain.Address, req *dto.CreateProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MarketplaceService.CreateProduct")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", req.Name),
		attribute.Int64("product.price", req.Price),
		attribute.String("caller", caller.String()),
	)

	s.logger.InfoContext(ctx, "Creating product",
		slog.String("name", req.Name),
		slog.Int64("price", req.Price),
		slog.String("seller", caller.String()),
	)

	product, err := s.store.Create(ctx, req.Name, req.Price, caller)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create product")
		s.logger.WarnContext(ctx, "Failed to create product",
			slog.String("error", err.Error()),
		)
		s.recordOperation(ctx, "create", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))

	s.productCreatedCounter.Add(ctx, 1)
	s.recordOperation(ctx, "create", nil)

	s.logger.InfoContext(ctx, "Product created successfully",
		slog.Uint64("product_id", product.ID),
	)

	span.SetStatus(codes.Ok, "Product created successfully")
	return dto.ToProductResponse(product), nil
}

// PurchaseProduct buys product id for caller, paying the seller exactly req.Payment
func (s *MarketplaceService) PurchaseProduct(ctx context.Context, caller domain.Address, id uint64, req *dto.PurchaseProductRequest) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MarketplaceService.PurchaseProduct")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product.id", int64(id)),
		attribute.Int64("payment", req.Payment),
		attribute.String("caller", caller.String()),
	)

	s.logger.InfoContext(ctx, "Purchasing product",
		slog.Uint64("product_id", id),
		slog.Int64("payment", req.Payment),
		slog.String("buyer", caller.String()),
	)

	if !caller.Valid() {
		err := fmt.Errorf("%w: buyer address is required", domain.ErrInvalidInput)
		span.RecordError(err)
		span.SetStatus(codes.Error, "Missing buyer")
		s.recordOperation(ctx, "purchase", err)
		return nil, err
	}

	product, seller, err := s.store.Purchase(ctx, id, caller, req.Payment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Purchase rejected")
		s.logger.WarnContext(ctx, "Purchase rejected",
			slog.Uint64("product_id", id),
			slog.String("error", err.Error()),
		)
		s.recordOperation(ctx, "purchase", err)
		return nil, err
	}

	s.productPurchasedCounter.Add(ctx, 1)
	s.recordOperation(ctx, "purchase", nil)

	s.logger.InfoContext(ctx, "Product purchased successfully",
		slog.Uint64("product_id", id),
		slog.String("seller", seller.String()),
		slog.String("buyer", caller.String()),
	)

	span.SetStatus(codes.Ok, "Product purchased successfully")
	return dto.ToProductResponse(product), nil
}

// GetProduct retrieves a product by ID
func (s *MarketplaceService) GetProduct(ctx context.Context, id uint64) (*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MarketplaceService.GetProduct")
	defer span.End()

	span.SetAttributes(attribute.Int64("product.id", int64(id)))

	product, err := s.store.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		s.recordOperation(ctx, "read", err)
		return nil, err
	}

	s.recordOperation(ctx, "read", nil)
	span.SetStatus(codes.Ok, "Product retrieved successfully")
	return dto.ToProductResponse(product), nil
}

// ListProducts retrieves all products in id order
func (s *MarketplaceService) ListProducts(ctx context.Context) ([]*dto.ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MarketplaceService.ListProducts")
	defer span.End()

	products, err := s.store.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to retrieve products")
		s.logger.ErrorContext(ctx, "Failed to list products",
			slog.String("error", err.Error()),
		)
		s.recordOperation(ctx, "list", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	s.recordOperation(ctx, "list", nil)
	span.SetStatus(codes.Ok, "Products listed successfully")
	return dto.ToProductResponseList(products), nil
}

// Balance returns the funds credited to account
func (s *MarketplaceService) Balance(ctx context.Context, account domain.Address) (*dto.BalanceResponse, error) {
	ctx, span := s.tracer.Start(ctx, "MarketplaceService.Balance")
	defer span.End()

	amount, err := s.ledger.Balance(ctx, account)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to read balance")
		return nil, err
	}
	return &dto.BalanceResponse{Account: account.String(), Balance: amount}, nil
}

// Events returns the recorded event history, empty when no history is kept
func (s *MarketplaceService) Events() []*dto.EventResponse {
	if s.history == nil {
		return []*dto.EventResponse{}
	}
	return dto.ToEventResponseList(s.history.Events())
}

func (s *MarketplaceService) recordOperation(ctx context.Context, operation string, err error) {
	s.operations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", resultOf(err)),
		),
	)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrProductNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrIncorrectPayment):
		return "incorrect_payment"
	case errors.Is(err, domain.ErrAlreadyPurchased):
		return "already_purchased"
	case errors.Is(err, domain.ErrSelfPurchase):
		return "self_purchase"
	default:
		return "failure"
	}
}
