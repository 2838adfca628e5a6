package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// setupCORS sets up CORS headers
func setupCORS(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// preflight answers OPTIONS and rejects anything but POST. It reports
// whether the request should be served.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	setupCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return false
	case http.MethodPost:
		return true
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
}

// writeError writes an error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON encodes v before writing the status so encoding failures still
// produce a clean error response.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
		writeError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(statusCode)
	w.Write(append(data, '\n'))
}

// statusFor maps a reconstruction error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnprocessableEntity
}
