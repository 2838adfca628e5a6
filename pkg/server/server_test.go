package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
)

func processor(_ context.Context, req models.ReconstructRequest) (models.ProfileResponse, error) {
	return models.ProfileResponse{ID: req.ID, Z: []float64{0, 400}, Rho: []float64{2.1, 2.1}, DRho: []float64{0, 0}}, nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Run.Quiet = true
	scfg := config.DefaultServerConfig()
	scfg.WebhookURL = ""
	scfg.WorkerCount = 2
	scfg.EnableProfiling = true

	s := New(Options{Config: cfg, ServerConfig: scfg, Processor: processor})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, s.Shutdown(context.Background()))
	})
	return s, ts
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 2.0, body["workers"])
}

func TestReconstructRoute(t *testing.T) {
	_, ts := newTestServer(t)
	m := models.MeasurementData{Q: []float64{0.01}, R: []float64{0.5}}
	data, err := json.Marshal(models.ReconstructRequest{ID: "x", Measurements: []models.MeasurementData{m, m}})
	require.NoError(t, err)

	res, err := http.Post(ts.URL+"/reconstruct", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Duration-Ms"))
	assert.Equal(t, "reconstruct-single", res.Header.Get("X-Handler-Name"))

	var resp models.ProfileResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	assert.Equal(t, "x", resp.ID)
}

func TestBatchRoute(t *testing.T) {
	_, ts := newTestServer(t)
	m := models.MeasurementData{Q: []float64{0.01}, R: []float64{0.5}}
	data, err := json.Marshal(models.BatchRequest{Items: []models.BatchItem{
		{Request: models.ReconstructRequest{Measurements: []models.MeasurementData{m, m}}},
	}})
	require.NoError(t, err)

	res, err := http.Post(ts.URL+"/reconstruct/batch", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
}
