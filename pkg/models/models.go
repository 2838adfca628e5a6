package models

import (
	"time"
)

// MeasurementData is one reflectivity curve as posted by clients. DR is
// optional.
type MeasurementData struct {
	Name string    `json:"name,omitempty"`
	Q    []float64 `json:"q"`
	R    []float64 `json:"r"`
	DR   []float64 `json:"dr,omitempty"`
}

// ReconstructRequest asks for the phase and depth profile of a film measured
// in two surrounds. The optional fields override the server configuration.
type ReconstructRequest struct {
	ID           string            `json:"id,omitempty"`
	Measurements []MeasurementData `json:"measurements"`
	Substrate    *float64          `json:"substrate,omitempty"`
	Surround     []float64         `json:"surround,omitempty"`
	Thickness    *float64          `json:"thickness,omitempty"`
	QMax         *float64          `json:"qmax,omitempty"`
}

// ProfileResponse is the outcome of a reconstruction: the real and imaginary
// amplitude of the free film followed by the inverted depth profile.
type ProfileResponse struct {
	ID        string    `json:"id"`
	Q         []float64 `json:"q"`
	RealR     []float64 `json:"real_r"`
	ImagR     []float64 `json:"imag_r"`
	DRealR    []float64 `json:"d_real_r,omitempty"`
	DImagR    []float64 `json:"d_imag_r,omitempty"`
	Z         []float64 `json:"z"`
	Rho       []float64 `json:"rho"`
	DRho      []float64 `json:"d_rho"`
	ChiSquare float64   `json:"chi_square"`
}

// BatchItem is a single reconstruction with its position in the batch
type BatchItem struct {
	Request   ReconstructRequest `json:"request"`
	Iteration int                `json:"iteration"`
}

// BatchRequest represents a batch of reconstructions
type BatchRequest struct {
	BatchID   string      `json:"batch_id"`
	Timestamp time.Time   `json:"timestamp"`
	Items     []BatchItem `json:"items"`
}

// WorkItem represents a single reconstruction task
type WorkItem struct {
	ID        int
	RequestID string
	BatchID   string
	Iteration int
	Request   ReconstructRequest
	StartTime time.Time

	// Results receives the WorkResult. It must be buffered or drained.
	Results chan<- WorkResult
}

// WorkResult contains the result of a reconstruction task
type WorkResult struct {
	ID             int
	RequestID      string
	BatchID        string
	Iteration      int
	Response       ProfileResponse
	Err            error
	ProcessingTime time.Duration
	Success        bool
}

// WebhookItem represents a webhook task
type WebhookItem struct {
	RequestID string
	BatchID   string
	Iteration int
	Response  ProfileResponse
}

// WebhookResponse represents the webhook payload structure
type WebhookResponse struct {
	ID        string    `json:"id"`
	Time      string    `json:"time"`
	BatchID   string    `json:"batch_id,omitempty"`
	Iteration int       `json:"iteration"`
	ChiSquare float64   `json:"chi_square"`
	Q         []float64 `json:"q"`
	RealR     []float64 `json:"real_r"`
	ImagR     []float64 `json:"imag_r"`
	Z         []float64 `json:"z"`
	Rho       []float64 `json:"rho"`
	DRho      []float64 `json:"d_rho"`
}

// ProfileTiming tracks performance metrics for one reconstruction of a batch
type ProfileTiming struct {
	Iteration      int           `json:"iteration"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	ChiSquare      float64       `json:"chi_square"`
	Success        bool          `json:"success"`
}
