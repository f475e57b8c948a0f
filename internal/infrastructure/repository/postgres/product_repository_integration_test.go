package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/trace/noop"
)

const skipIntegrationTests = "MARKETPLACE_SKIP_INTEGRATION_TESTS"

const (
	seller   domain.Address = "0xSeller"
	buyer    domain.Address = "0xBuyer"
	deployer domain.Address = "0xDeployer"
	oneEther int64          = 1_000_000_000_000_000_000
)

// eventSink records published events in order.
type eventSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (k *eventSink) Publish(_ context.Context, event domain.Event) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, event)
	return nil
}

func (k *eventSink) recorded() []domain.Event {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]domain.Event(nil), k.events...)
}

func (k *eventSink) reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = nil
}

// ProductRepositorySuite runs the PostgreSQL store against a real database container.
type ProductRepositorySuite struct {
	suite.Suite
	pgContainer *tcpostgres.PostgresContainer
	dbPool      *pgxpool.Pool
	repo        *ProductRepository
	sink        *eventSink
	logger      *slog.Logger
	ctx         context.Context
}

func (s *ProductRepositorySuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.pgContainer, err = tcpostgres.Run(s.ctx,
		"postgres:17.5-alpine",
		tcpostgres.WithDatabase("marketplace"),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	require.NoError(s.T(), Migrate(connStr), "Failed to apply migrations")
	// Applying twice must be a no-op.
	require.NoError(s.T(), Migrate(connStr))

	s.dbPool, err = Connect(s.ctx, connStr, 30*time.Second)
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL")

	s.sink = &eventSink{}
	s.repo = NewProductRepository(s.dbPool, s.sink, noop.NewTracerProvider().Tracer("test"), s.logger)
}

func (s *ProductRepositorySuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		}
	}
}

// SetupTest resets products, balances and the id counter.
func (s *ProductRepositorySuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE products, balances")
	require.NoError(s.T(), err)
	_, err = s.dbPool.Exec(s.ctx, "UPDATE marketplace_state SET product_count = 0 WHERE id = 1")
	require.NoError(s.T(), err)
	s.sink.reset()
}

func TestProductRepositoryIntegration(t *testing.T) {
	if testing.Short() || os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on -short or " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(ProductRepositorySuite))
}

func (s *ProductRepositorySuite) TestCreate_SequentialIDs() {
	for i := 1; i <= 3; i++ {
		product, err := s.repo.Create(s.ctx, fmt.Sprintf("item-%d", i), int64(i), seller)
		s.Require().NoError(err)
		s.Equal(uint64(i), product.ID)
	}

	count, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(3), count)

	products, err := s.repo.FindAll(s.ctx)
	s.Require().NoError(err)
	s.Len(products, 3)
	s.Equal(uint64(1), products[0].ID)
}

func (s *ProductRepositorySuite) TestCreate_InvalidInputKeepsCount() {
	_, err := s.repo.Create(s.ctx, "", oneEther, seller)
	s.ErrorIs(err, domain.ErrInvalidInput)
	_, err = s.repo.Create(s.ctx, "iPhone X", 0, seller)
	s.ErrorIs(err, domain.ErrInvalidInput)

	count, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *ProductRepositorySuite) TestPurchase_Scenario() {
	created, err := s.repo.Create(s.ctx, "iPhone X", oneEther, seller)
	s.Require().NoError(err)

	sold, paidTo, err := s.repo.Purchase(s.ctx, created.ID, buyer, oneEther)
	s.Require().NoError(err)
	s.Equal(seller, paidTo)
	s.Equal(&domain.Product{ID: 1, Name: "iPhone X", Price: oneEther, Owner: buyer, Purchased: true}, sold)

	balance, err := s.repo.Balance(s.ctx, seller)
	s.Require().NoError(err)
	s.Equal(oneEther, balance)

	_, _, err = s.repo.Purchase(s.ctx, 99, buyer, oneEther)
	s.ErrorIs(err, domain.ErrProductNotFound)
	_, _, err = s.repo.Purchase(s.ctx, 1, buyer, oneEther/2)
	s.ErrorIs(err, domain.ErrIncorrectPayment)
	_, _, err = s.repo.Purchase(s.ctx, 1, deployer, oneEther)
	s.ErrorIs(err, domain.ErrAlreadyPurchased)
	_, _, err = s.repo.Purchase(s.ctx, 1, buyer, oneEther)
	s.ErrorIs(err, domain.ErrAlreadyPurchased)

	stored, err := s.repo.FindByID(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(buyer, stored.Owner)
	s.True(stored.Purchased)

	balance, err = s.repo.Balance(s.ctx, seller)
	s.Require().NoError(err)
	s.Equal(oneEther, balance)
}

func (s *ProductRepositorySuite) TestPurchase_SelfPurchase() {
	_, err := s.repo.Create(s.ctx, "Pixel", 10, seller)
	s.Require().NoError(err)

	_, _, err = s.repo.Purchase(s.ctx, 1, seller, 10)

	s.ErrorIs(err, domain.ErrSelfPurchase)
	balance, err := s.repo.Balance(s.ctx, seller)
	s.Require().NoError(err)
	s.Zero(balance)
}

func (s *ProductRepositorySuite) TestPurchase_ConcurrentExactlyOnce() {
	_, err := s.repo.Create(s.ctx, "Pixel", 10, seller)
	s.Require().NoError(err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, _, err := s.repo.Purchase(s.ctx, 1, domain.Address(fmt.Sprintf("0xBuyer%d", i)), 10); err == nil {
				succeeded.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	balance, err := s.repo.Balance(s.ctx, seller)
	s.Require().NoError(err)
	s.Equal(int64(10), balance)
}

func (s *ProductRepositorySuite) TestFindByID_NotFound() {
	_, err := s.repo.FindByID(s.ctx, 42)
	s.ErrorIs(err, domain.ErrProductNotFound)
}

func (s *ProductRepositorySuite) TestEvents_CreatedPrecedesPurchasedUnderConcurrency() {
	const products = 10

	var wg sync.WaitGroup
	for i := 0; i < products; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.repo.Create(s.ctx, "item", 1, seller)
			s.NoError(err)
		}()
		go func(id uint64) {
			defer wg.Done()
			// Retries until the product exists; rejections publish nothing.
			for {
				_, _, err := s.repo.Purchase(s.ctx, id, buyer, 1)
				if err == nil {
					return
				}
				s.ErrorIs(err, domain.ErrProductNotFound)
				time.Sleep(time.Millisecond)
			}
		}(uint64(i + 1))
	}
	wg.Wait()

	events := s.sink.recorded()
	s.Require().Len(events, 2*products)
	created := make(map[uint64]bool, products)
	for _, e := range events {
		switch e.Type {
		case domain.EventProductCreated:
			created[e.Product.ID] = true
		case domain.EventProductPurchased:
			s.True(created[e.Product.ID], "ProductPurchased for product %d recorded before its ProductCreated", e.Product.ID)
		}
	}
}
