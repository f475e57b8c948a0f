package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/emmytech-marketplace/internal/app/dto"
	"github.com/mrops-br/emmytech-marketplace/internal/app/service"
	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/events"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/http/middleware"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/http/response"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const oneEther = "1000000000000000000"

func newRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	ledger := memory.NewLedger()
	journal := events.NewJournal()
	svc := service.NewMarketplaceService(domain.MarketplaceName,
		memory.NewProductRepository(ledger, journal, tracer, logger), ledger, journal,
		tracer, metricnoop.NewMeterProvider().Meter("test"), logger)

	r := chi.NewRouter()
	r.Use(middleware.CallerIdentity())
	NewMarketplaceHandler(svc, logger).RegisterRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(middleware.CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func Test_MarketplaceHandler_Marketplace(t *testing.T) {
	router := newRouter()

	rec := do(t, router, http.MethodGet, "/marketplace", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.MarketplaceResponse{Name: "emmytech", ProductCount: 0}, decode[dto.MarketplaceResponse](t, rec))
}

func Test_MarketplaceHandler_Scenario(t *testing.T) {
	router := newRouter()

	// Seller lists a product
	rec := do(t, router, http.MethodPost, "/products", "0xSeller", `{"name":"iPhone X","price":`+oneEther+`}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[dto.ProductResponse](t, rec)
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, "0xSeller", created.Owner)
	assert.False(t, created.Purchased)

	rec = do(t, router, http.MethodGet, "/marketplace", "", "")
	assert.Equal(t, uint64(1), decode[dto.MarketplaceResponse](t, rec).ProductCount)

	// Buyer purchases it
	rec = do(t, router, http.MethodPost, "/products/1/purchase", "0xBuyer", `{"payment":`+oneEther+`}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sold := decode[dto.ProductResponse](t, rec)
	assert.Equal(t, "0xBuyer", sold.Owner)
	assert.True(t, sold.Purchased)

	rec = do(t, router, http.MethodGet, "/accounts/0xSeller/balance", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.BalanceResponse{Account: "0xSeller", Balance: 1_000_000_000_000_000_000}, decode[dto.BalanceResponse](t, rec))

	rec = do(t, router, http.MethodGet, "/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]dto.EventResponse](t, rec)
	require.Len(t, history, 2)
	assert.Equal(t, "ProductCreated", history[0].Type)
	assert.Equal(t, "ProductPurchased", history[1].Type)
	assert.Equal(t, "0xBuyer", history[1].Product.Owner)

	rec = do(t, router, http.MethodGet, "/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]dto.ProductResponse](t, rec), 1)
}

func Test_MarketplaceHandler_PurchaseRejections(t *testing.T) {
	testCases := []struct {
		name           string
		path           string
		caller         string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{name: "missing caller", path: "/products/1/purchase", body: `{"payment":10}`, expectedStatus: http.StatusUnauthorized, expectedError: "unauthorized"},
		{name: "bad id", path: "/products/abc/purchase", caller: "0xBuyer", body: `{"payment":10}`, expectedStatus: http.StatusBadRequest, expectedError: "bad_request"},
		{name: "bad body", path: "/products/1/purchase", caller: "0xBuyer", body: `{`, expectedStatus: http.StatusBadRequest, expectedError: "bad_request"},
		{name: "unknown product", path: "/products/99/purchase", caller: "0xBuyer", body: `{"payment":10}`, expectedStatus: http.StatusNotFound, expectedError: "not_found"},
		{name: "underpayment", path: "/products/1/purchase", caller: "0xBuyer", body: `{"payment":5}`, expectedStatus: http.StatusPaymentRequired, expectedError: "incorrect_payment"},
		{name: "overpayment", path: "/products/1/purchase", caller: "0xBuyer", body: `{"payment":11}`, expectedStatus: http.StatusPaymentRequired, expectedError: "incorrect_payment"},
		{name: "seller buys own listing", path: "/products/1/purchase", caller: "0xSeller", body: `{"payment":10}`, expectedStatus: http.StatusForbidden, expectedError: "self_purchase_forbidden"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			router := newRouter()
			rec := do(t, router, http.MethodPost, "/products", "0xSeller", `{"name":"Pixel","price":10}`)
			require.Equal(t, http.StatusCreated, rec.Code)
			// when
			rec = do(t, router, http.MethodPost, tc.path, tc.caller, tc.body)
			// then
			assert.Equal(t, tc.expectedStatus, rec.Code)
			assert.Equal(t, tc.expectedError, decode[response.ErrorResponse](t, rec).Error)

			rec = do(t, router, http.MethodGet, "/products/1", "", "")
			assert.False(t, decode[dto.ProductResponse](t, rec).Purchased)
		})
	}
}

func Test_MarketplaceHandler_PurchaseTwice(t *testing.T) {
	router := newRouter()
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/products", "0xSeller", `{"name":"Pixel","price":10}`).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/products/1/purchase", "0xBuyer", `{"payment":10}`).Code)

	for _, caller := range []string{"0xDeployer", "0xBuyer"} {
		rec := do(t, router, http.MethodPost, "/products/1/purchase", caller, `{"payment":10}`)
		assert.Equal(t, http.StatusConflict, rec.Code, caller)
	}
}

func Test_MarketplaceHandler_CreateValidation(t *testing.T) {
	testCases := []struct {
		name           string
		caller         string
		body           string
		expectedStatus int
		expectedField  string
	}{
		{name: "missing caller", body: `{"name":"Pixel","price":10}`, expectedStatus: http.StatusUnauthorized},
		{name: "empty name", caller: "0xSeller", body: `{"name":"","price":10}`, expectedStatus: http.StatusBadRequest, expectedField: "Name"},
		{name: "zero price", caller: "0xSeller", body: `{"name":"Pixel","price":0}`, expectedStatus: http.StatusBadRequest, expectedField: "Price"},
		{name: "negative price", caller: "0xSeller", body: `{"name":"Pixel","price":-1}`, expectedStatus: http.StatusBadRequest, expectedField: "Price"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter()

			rec := do(t, router, http.MethodPost, "/products", tc.caller, tc.body)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			if tc.expectedField != "" {
				resp := decode[response.ValidationErrorResponse](t, rec)
				assert.Contains(t, resp.ValidationErrors, tc.expectedField)
			}
			rec = do(t, router, http.MethodGet, "/marketplace", "", "")
			assert.Zero(t, decode[dto.MarketplaceResponse](t, rec).ProductCount)
		})
	}
}

func Test_MarketplaceHandler_GetProduct_NotFound(t *testing.T) {
	router := newRouter()

	rec := do(t, router, http.MethodGet, "/products/1", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
