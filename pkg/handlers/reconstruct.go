package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/kacperjurak/goreflcore/internal/utils"
	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
	"github.com/kacperjurak/goreflcore/pkg/worker"
)

// ReconstructHandler reconstructs a single surround pair and answers with
// the profile.
type ReconstructHandler struct {
	config    *config.Config
	processor worker.ProcessorFunc
}

// NewReconstructHandler creates a new reconstruction handler
func NewReconstructHandler(cfg *config.Config, processor worker.ProcessorFunc) *ReconstructHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &ReconstructHandler{
		config:    cfg,
		processor: processor,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *ReconstructHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var req models.ReconstructRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if len(req.Measurements) != 2 {
		writeError(w, "Exactly two measurements are required", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = utils.GenerateID()
	}

	if !h.config.Run.Quiet {
		log.Printf("HTTP Request received - ID: %s, Data points: %d", req.ID, len(req.Measurements[0].Q))
	}

	resp, err := h.processor(r.Context(), req)
	if err != nil {
		log.Printf("❌ Reconstruction %s failed: %v", req.ID, err)
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if resp.ID == "" {
		resp.ID = req.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
