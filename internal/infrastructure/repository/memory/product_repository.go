package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProductRepository is an in-memory implementation of domain.ProductStore.
// Products live in a slice indexed by id-1, so ids stay sequential and gapless.
// Events are published while the write lock is still held, so sinks observe
// them in commit order.
type ProductRepository struct {
	mu        sync.RWMutex
	products  []domain.Product
	ledger    domain.Ledger
	publisher domain.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewProductRepository creates a new in-memory product repository that pays
// sellers through ledger and reports committed changes to publisher (may be nil)
func NewProductRepository(ledger domain.Ledger, publisher domain.EventPublisher, tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		ledger:    ledger,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger,
	}
}

// Create stores a new product with the next sequential id
func (r *ProductRepository) Create(ctx context.Context, name string, price int64, seller domain.Address) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", name),
		attribute.Int64("product.price", price),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	product, err := domain.NewProduct(uint64(len(r.products))+1, name, price, seller)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Validation failed")
		return nil, err
	}
	r.products = append(r.products, *product)
	r.publish(ctx, domain.NewEvent(domain.EventProductCreated, *product))

	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))
	r.logger.InfoContext(ctx, "Product created in repository",
		slog.Uint64("product_id", product.ID),
		slog.String("product_name", product.Name),
	)

	span.SetStatus(codes.Ok, "Product created successfully")
	return product, nil
}

// Purchase validates and settles a purchase under the write lock. The new
// snapshot is written only after the ledger accepted the seller credit.
func (r *ProductRepository) Purchase(ctx context.Context, id uint64, buyer domain.Address, payment int64) (*domain.Product, domain.Address, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Purchase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product.id", int64(id)),
		attribute.Int64("payment", payment),
	)

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.get(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		return nil, "", err
	}

	if err := current.CheckPurchase(buyer, payment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Purchase rejected")
		return nil, "", err
	}

	seller := current.Owner
	staged := current.Sold(buyer)

	if err := r.ledger.Credit(ctx, seller, payment); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Seller credit failed")
		r.logger.ErrorContext(ctx, "Seller credit failed, purchase aborted",
			slog.Uint64("product_id", id),
			slog.String("error", err.Error()),
		)
		return nil, "", fmt.Errorf("credit seller: %w", err)
	}
	r.products[id-1] = staged
	r.publish(ctx, domain.NewEvent(domain.EventProductPurchased, staged))

	r.logger.InfoContext(ctx, "Product purchased in repository",
		slog.Uint64("product_id", id),
		slog.String("seller", seller.String()),
		slog.String("buyer", buyer.String()),
	)

	span.SetStatus(codes.Ok, "Product purchased successfully")
	return &staged, seller, nil
}

// FindByID retrieves a product by ID
func (r *ProductRepository) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.FindByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("product.id", int64(id)))

	r.mu.RLock()
	defer r.mu.RUnlock()

	product, err := r.get(id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		r.logger.WarnContext(ctx, "Product not found",
			slog.Uint64("product_id", id),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Product found")
	return &product, nil
}

// FindAll retrieves all products ordered by id
func (r *ProductRepository) FindAll(ctx context.Context) ([]*domain.Product, error) {
	_, span := r.tracer.Start(ctx, "ProductRepository.FindAll")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]*domain.Product, len(r.products))
	for i := range r.products {
		p := r.products[i]
		products[i] = &p
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// Count returns the number of products ever created
func (r *ProductRepository) Count(_ context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.products)), nil
}

// publish must be called with the write lock held. The change is already
// committed, so a sink failure is logged and the call still succeeds.
func (r *ProductRepository) publish(ctx context.Context, event domain.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event",
			slog.String("event_type", string(event.Type)),
			slog.String("event_id", event.ID.String()),
			slog.Uint64("product_id", event.Product.ID),
			slog.String("error", err.Error()),
		)
	}
}

// get must be called with the lock held.
func (r *ProductRepository) get(id uint64) (domain.Product, error) {
	if id == 0 || id > uint64(len(r.products)) {
		return domain.Product{}, fmt.Errorf("%w: id %d", domain.ErrProductNotFound, id)
	}
	return r.products[id-1], nil
}
