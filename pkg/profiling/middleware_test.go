package profiling

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfiledHandlerAddsTiming(t *testing.T) {
	h := NewMiddleware(true).ProfiledHandlerFunc("reconstruct", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "reconstruct", rec.Header().Get("X-Handler-Name"))
	assert.Equal(t, "202", rec.Header().Get("X-Status-Code"))
	ms, err := strconv.ParseFloat(rec.Header().Get("X-Duration-Ms"), 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, 0.0)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProfiledHandlerImplicitStatus(t *testing.T) {
	h := NewMiddleware(true).ProfiledHandlerFunc("health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "200", rec.Header().Get("X-Status-Code"))
}

func TestProfiledHandlerDisabled(t *testing.T) {
	h := NewMiddleware(false).ProfiledHandlerFunc("reconstruct", func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Empty(t, rec.Header().Get("X-Duration-Ms"))
}
