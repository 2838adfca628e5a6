package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID for requests
func GenerateID() string {
	return uuid.NewString()
}

// ItemID names one reconstruction of a batch.
func ItemID(batchID string, iteration int) string {
	return fmt.Sprintf("%s_iter_%03d", batchID, iteration)
}
