package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/config"
	"github.com/mrops-br/emmytech-marketplace/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_HTTPRouteContext_LogsRoutePattern(t *testing.T) {
	testCases := []struct {
		name          string
		method        string
		path          string
		expectedRoute string
	}{
		{name: "product by id", method: http.MethodGet, path: "/products/7", expectedRoute: "/products/{id}"},
		{name: "purchase", method: http.MethodPost, path: "/products/7/purchase", expectedRoute: "/products/{id}/purchase"},
		{name: "static route", method: http.MethodGet, path: "/marketplace", expectedRoute: "/marketplace"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			var buf bytes.Buffer
			logger := telemetry.NewLogger(&buf, &config.OTLPConfig{}, "info")
			logRoute := func(w http.ResponseWriter, r *http.Request) {
				logger.InfoContext(r.Context(), "handled")
				w.WriteHeader(http.StatusOK)
			}

			r := chi.NewRouter()
			r.Use(HTTPRouteContext())
			r.Get("/marketplace", logRoute)
			r.Get("/products/{id}", logRoute)
			r.Post("/products/{id}/purchase", logRoute)

			// when
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))

			// then
			require.Equal(t, http.StatusOK, rec.Code)
			var record map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
			assert.Equal(t, tc.expectedRoute, record["http.route"])
		})
	}
}

func Test_StructuredLogger_UsesRoutePattern(t *testing.T) {
	// given
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, &config.OTLPConfig{}, "info")
	r := chi.NewRouter()
	r.Use(StructuredLogger(logger))
	r.Get("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	// when
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/42", nil))

	// then
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "HTTP request completed", record["msg"])
	assert.Equal(t, "/products/{id}", record["http.route"])
	assert.Equal(t, "/products/42", record["url.path"])
	assert.Equal(t, "WARN", record["level"])
}
