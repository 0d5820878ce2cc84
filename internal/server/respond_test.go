package server

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/market/indices", nil)
	rec := httptest.NewRecorder()
	writeJSON(rec, req, http.StatusOK, map[string]any{"ok": true})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestWriteJSON_EncodeFailureIs500(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/calculator/options", nil)
	rec := httptest.NewRecorder()
	rec.Header().Set(resultOrderHeader, "options_outer")

	writeJSON(rec, req, http.StatusOK, map[string]any{"profitLoss": math.Inf(1)})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(resultOrderHeader))
}
