package webhook

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
)

func quietConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Run.Quiet = true
	return cfg
}

func TestSendPostsProfile(t *testing.T) {
	var got models.WebhookResponse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, quietConfig())
	err := c.Send(context.Background(), models.WebhookItem{
		RequestID: "b_iter_001",
		BatchID:   "b",
		Iteration: 1,
		Response: models.ProfileResponse{
			Z:         []float64{0, 200, 400},
			Rho:       []float64{2.1, math.NaN(), 2.1},
			DRho:      []float64{0, 0, 0},
			ChiSquare: math.Inf(1),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "b_iter_001", got.ID)
	assert.Equal(t, "b", got.BatchID)
	assert.Equal(t, 1, got.Iteration)
	assert.Equal(t, []float64{0, 200, 400}, got.Z)
	assert.Equal(t, []float64{2.1, 0, 2.1}, got.Rho)
	assert.Equal(t, 0.0, got.ChiSquare)
	assert.NotEmpty(t, got.Time)
}

func TestSendReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, quietConfig()).Send(context.Background(), models.WebhookItem{RequestID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSendHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient(srv.URL, quietConfig()).Send(ctx, models.WebhookItem{RequestID: "x"})
	require.ErrorIs(t, err, context.Canceled)
}
