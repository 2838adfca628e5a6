package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
)

// Client posts finished depth profiles to an external consumer
type Client struct {
	url        string
	httpClient *http.Client
	config     *config.Config
	bufferPool sync.Pool // Pool for JSON marshaling buffers
}

// NewClient creates a new webhook client with connection pooling
func NewClient(url string, cfg *config.Config) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		url:    url,
		config: cfg,
		httpClient: &http.Client{
			Timeout:   45 * time.Second,
			Transport: transport,
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				// profiles run to a few thousand numbers
				return bytes.NewBuffer(make([]byte, 0, 16*1024))
			},
		},
	}
}

// Send posts the profile of a finished reconstruction
func (c *Client) Send(ctx context.Context, item models.WebhookItem) error {
	resp := item.Response
	payload := models.WebhookResponse{
		ID:        item.RequestID,
		Time:      time.Now().Format(time.RFC3339Nano),
		BatchID:   item.BatchID,
		Iteration: item.Iteration,
		ChiSquare: sanitizeFloat(resp.ChiSquare),
		Q:         sanitizeFloats(resp.Q),
		RealR:     sanitizeFloats(resp.RealR),
		ImagR:     sanitizeFloats(resp.ImagR),
		Z:         sanitizeFloats(resp.Z),
		Rho:       sanitizeFloats(resp.Rho),
		DRho:      sanitizeFloats(resp.DRho),
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer res.Body.Close()

	if !c.config.Run.Quiet {
		log.Printf("Webhook sent - ID: %s, Chi-square: %.6e, Depths: %d, Status: %d",
			item.RequestID, payload.ChiSquare, len(payload.Z), res.StatusCode)
	}

	if res.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", res.StatusCode)
	}
	return nil
}

// sanitizeFloat cleans float64 values for JSON compatibility
func sanitizeFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0.0
	}
	return value
}

func sanitizeFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = sanitizeFloat(x)
	}
	return out
}
