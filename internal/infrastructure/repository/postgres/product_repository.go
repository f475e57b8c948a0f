// Package postgres provides a transactional product store and ledger backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrTransactionBegin    = errors.New("failed to begin transaction")
	ErrTransactionRollback = errors.New("failed to rollback transaction")
	ErrTransactionCommit   = errors.New("failed to commit transaction")
)

const (
	nextIDQuery = `UPDATE marketplace_state SET product_count = product_count + 1 WHERE id = 1 RETURNING product_count`
	countQuery  = `SELECT product_count FROM marketplace_state WHERE id = 1`

	insertProductQuery = `INSERT INTO products (id, name, price, owner, purchased) VALUES ($1, $2, $3, $4, FALSE)`
	selectProductQuery = `SELECT id, name, price, owner, purchased FROM products WHERE id = $1`
	lockProductQuery   = selectProductQuery + ` FOR UPDATE`
	listProductsQuery  = `SELECT id, name, price, owner, purchased FROM products ORDER BY id`
	markSoldQuery      = `UPDATE products SET owner = $2, purchased = TRUE WHERE id = $1 AND purchased = FALSE`

	creditQuery  = `INSERT INTO balances (account, amount) VALUES ($1, $2) ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`
	balanceQuery = `SELECT amount FROM balances WHERE account = $1`
)

// ProductRepository implements domain.ProductStore and domain.Ledger. Each
// mutation runs in one transaction, so the seller credit and the ownership
// change commit or roll back together. Mutations and their events are
// serialized by writeMu, so publisher sees events in commit order.
type ProductRepository struct {
	db        *pgxpool.Pool
	publisher domain.EventPublisher
	tracer    trace.Tracer
	logger    *slog.Logger

	writeMu sync.Mutex
}

func NewProductRepository(db *pgxpool.Pool, publisher domain.EventPublisher, tracer trace.Tracer, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{
		db:        db,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger,
	}
}

// Create reserves the next id from the counter row and inserts the product.
func (r *ProductRepository) Create(ctx context.Context, name string, price int64, seller domain.Address) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "PgProductRepository.Create")
	defer span.End()

	if err := domain.ValidateListing(name, price, seller); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Validation failed")
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var product *domain.Product
	err := r.withTransaction(ctx, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, nextIDQuery).Scan(&id); err != nil {
			return fmt.Errorf("failed to allocate product id: %w", err)
		}
		p, err := domain.NewProduct(uint64(id), name, price, seller)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertProductQuery, id, p.Name, p.Price, p.Owner.String()); err != nil {
			return fmt.Errorf("failed to insert product: %w", err)
		}
		product = p
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create product")
		return nil, err
	}
	r.publish(ctx, domain.NewEvent(domain.EventProductCreated, *product))

	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))
	r.logger.InfoContext(ctx, "Product created in database",
		slog.Uint64("product_id", product.ID),
		slog.String("product_name", product.Name),
	)
	span.SetStatus(codes.Ok, "Product created successfully")
	return product, nil
}

// Purchase locks the product row, applies the purchase rules, credits the
// seller and marks the product sold inside one transaction.
func (r *ProductRepository) Purchase(ctx context.Context, id uint64, buyer domain.Address, payment int64) (*domain.Product, domain.Address, error) {
	ctx, span := r.tracer.Start(ctx, "PgProductRepository.Purchase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product.id", int64(id)),
		attribute.Int64("payment", payment),
	)

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var (
		sold   domain.Product
		seller domain.Address
	)
	err := r.withTransaction(ctx, func(tx pgx.Tx) error {
		current, err := scanProduct(tx.QueryRow(ctx, lockProductQuery, int64(id)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: id %d", domain.ErrProductNotFound, id)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}
		if err := current.CheckPurchase(buyer, payment); err != nil {
			return err
		}

		seller = current.Owner
		sold = current.Sold(buyer)

		if _, err := tx.Exec(ctx, creditQuery, seller.String(), payment); err != nil {
			return fmt.Errorf("credit seller: %w", err)
		}
		tag, err := tx.Exec(ctx, markSoldQuery, int64(id), buyer.String())
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: product %d", domain.ErrAlreadyPurchased, id)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Purchase rejected")
		return nil, "", err
	}
	r.publish(ctx, domain.NewEvent(domain.EventProductPurchased, sold))

	r.logger.InfoContext(ctx, "Product purchased in database",
		slog.Uint64("product_id", id),
		slog.String("seller", seller.String()),
		slog.String("buyer", buyer.String()),
	)
	span.SetStatus(codes.Ok, "Product purchased successfully")
	return &sold, seller, nil
}

// FindByID retrieves a product by ID
func (r *ProductRepository) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "PgProductRepository.FindByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("product.id", int64(id)))

	product, err := scanProduct(r.db.QueryRow(ctx, selectProductQuery, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("%w: id %d", domain.ErrProductNotFound, id)
		} else {
			err = fmt.Errorf("failed to find product by ID: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Product not found")
		return nil, err
	}

	span.SetStatus(codes.Ok, "Product found")
	return &product, nil
}

// FindAll retrieves all products ordered by id
func (r *ProductRepository) FindAll(ctx context.Context) ([]*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "PgProductRepository.FindAll")
	defer span.End()

	rows, err := r.db.Query(ctx, listProductsQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to list products")
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Products retrieved successfully")
	return products, nil
}

// Count returns the number of products ever created
func (r *ProductRepository) Count(ctx context.Context) (uint64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, countQuery).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read product count: %w", err)
	}
	return uint64(count), nil
}

// Credit adds a positive amount to the account balance.
func (r *ProductRepository) Credit(ctx context.Context, account domain.Address, amount int64) error {
	if !account.Valid() {
		return fmt.Errorf("%w: account address is required", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", domain.ErrInvalidInput)
	}
	if _, err := r.db.Exec(ctx, creditQuery, account.String(), amount); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// Balance returns zero for accounts that never received funds.
func (r *ProductRepository) Balance(ctx context.Context, account domain.Address) (int64, error) {
	var amount int64
	err := r.db.QueryRow(ctx, balanceQuery, account.String()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return amount, nil
}

// publish must be called with writeMu held, after the transaction committed.
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

func (r *ProductRepository) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionBegin, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w: %w", ErrTransactionRollback, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionCommit, err)
	}
	return nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		id    int64
		owner string
	)
	if err := row.Scan(&id, &p.Name, &p.Price, &owner, &p.Purchased); err != nil {
		return domain.Product{}, err
	}
	p.ID = uint64(id)
	p.Owner = domain.Address(owner)
	return p, nil
}
