package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mrops-br/emmytech-marketplace/internal/app/dto"
	"github.com/mrops-br/emmytech-marketplace/internal/app/service"
	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/http/middleware"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/http/response"
)

var errMissingCaller = errors.New("caller address is required in the " + middleware.CallerHeader + " header")

// MarketplaceHandler handles HTTP requests for the marketplace
type MarketplaceHandler struct {
	service  *service.MarketplaceService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewMarketplaceHandler creates a new marketplace handler
func NewMarketplaceHandler(service *service.MarketplaceService, logger *slog.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes mounts the marketplace routes on r
func (h *MarketplaceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/marketplace", h.GetMarketplace)
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.CreateProduct)
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
		r.Post("/{id}/purchase", h.PurchaseProduct)
	})
	r.Get("/accounts/{address}/balance", h.GetBalance)
	r.Get("/events", h.ListEvents)
}

// GetMarketplace handles GET /marketplace
func (h *MarketplaceHandler) GetMarketplace(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Info(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, info)
}

// CreateProduct handles POST /products
func (h *MarketplaceHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, errMissingCaller)
		return
	}

	var req dto.CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), caller, &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, product)
}

// PurchaseProduct handles POST /products/{id}/purchase
func (h *MarketplaceHandler) PurchaseProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, errMissingCaller)
		return
	}

	var req dto.PurchaseProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.service.PurchaseProduct(r.Context(), caller, id, &req)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, product)
}

// GetProduct handles GET /products/{id}
func (h *MarketplaceHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, product)
}

// ListProducts handles GET /products
func (h *MarketplaceHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, products)
}

// GetBalance handles GET /accounts/{address}/balance
func (h *MarketplaceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := domain.Address(chi.URLParam(r, "address"))

	balance, err := h.service.Balance(r.Context(), address)
	if err != nil {
		response.DomainError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, balance)
}

// ListEvents handles GET /events
func (h *MarketplaceHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.service.Events())
}

func (h *MarketplaceHandler) parseID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, fmt.Errorf("invalid product id: %q", raw))
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into dst and runs struct validation on it
func (h *MarketplaceHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body",
			slog.String("error", err.Error()),
		)
		response.Error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, fieldErr := range validationErrors {
				fields[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			h.logger.WarnContext(r.Context(), "Validation errors occurred", slog.Any("errors", fields))
			response.JSON(w, http.StatusBadRequest, response.ValidationErrorResponse{
				Error:            "bad_request",
				ValidationErrors: fields,
			})
			return false
		}
		response.Error(w, http.StatusBadRequest, err)
		return false
	}
	return true
}
