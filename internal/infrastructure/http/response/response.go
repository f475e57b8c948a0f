package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ValidationErrorResponse lists failed request fields and their rules
type ValidationErrorResponse struct {
	Error            string            `json:"error"`
	ValidationErrors map[string]string `json:"validation_errors"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, err error) {
	JSON(w, status, ErrorResponse{
		Error:   errorType(status),
		Message: err.Error(),
	})
}

// DomainError picks the status for a marketplace error and sends it
func DomainError(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err)
}

// StatusFor maps marketplace rejections to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIncorrectPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrAlreadyPurchased):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSelfPurchase):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusPaymentRequired:
		return "incorrect_payment"
	case http.StatusForbidden:
		return "self_purchase_forbidden"
	case http.StatusConflict:
		return "already_purchased"
	case http.StatusInternalServerError:
		return "internal_server_error"
	}
	return "error"
}
