package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mrops-br/emmytech-marketplace/internal/domain"
	"github.com/stretchr/testify/assert"
)

func Test_StatusFor(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{err: fmt.Errorf("%w: empty", domain.ErrInvalidInput), expected: http.StatusBadRequest},
		{err: fmt.Errorf("%w: id 9", domain.ErrProductNotFound), expected: http.StatusNotFound},
		{err: domain.ErrIncorrectPayment, expected: http.StatusPaymentRequired},
		{err: domain.ErrAlreadyPurchased, expected: http.StatusConflict},
		{err: domain.ErrSelfPurchase, expected: http.StatusForbidden},
		{err: errors.New("database down"), expected: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, StatusFor(tc.err), tc.err.Error())
	}
}

func Test_DomainError(t *testing.T) {
	rec := httptest.NewRecorder()

	DomainError(rec, domain.ErrAlreadyPurchased)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"already_purchased","message":"product already purchased"}`, rec.Body.String())
}
