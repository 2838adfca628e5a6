package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kacperjurak/goreflcore/internal/utils"
	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/models"
	"github.com/kacperjurak/goreflcore/pkg/worker"
)

// BatchHandler runs batches of reconstructions through the worker pool and
// forwards every finished profile to the webhook queue.
type BatchHandler struct {
	config     *config.Config
	workerPool *worker.Pool
	timingFile string
	inflight   sync.WaitGroup
}

// NewBatchHandler creates a new batch handler. Batch timings are appended
// to timingFile as CSV unless it is empty.
func NewBatchHandler(cfg *config.Config, pool *worker.Pool, timingFile string) *BatchHandler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &BatchHandler{
		config:     cfg,
		workerPool: pool,
		timingFile: timingFile,
	}
}

// ServeHTTP implements the http.Handler interface
func (h *BatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}

	var batch models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return
	}
	if len(batch.Items) == 0 {
		writeError(w, "No items provided in batch", http.StatusBadRequest)
		return
	}
	if batch.BatchID == "" {
		batch.BatchID = utils.GenerateID()
	}

	log.Printf("🔄 Batch processing started - ID: %s, Items: %d", batch.BatchID, len(batch.Items))

	h.inflight.Add(1)
	go h.processBatchAsync(batch)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success":  true,
		"batch_id": batch.BatchID,
		"items":    len(batch.Items),
		"message":  "Batch processing started with worker pool",
	})
}

// Wait blocks until every accepted batch has finished.
func (h *BatchHandler) Wait() {
	h.inflight.Wait()
}

// processBatchAsync handles asynchronous batch processing
func (h *BatchHandler) processBatchAsync(batch models.BatchRequest) {
	defer h.inflight.Done()

	batchStartTime := time.Now()
	results := make(chan models.WorkResult, len(batch.Items))

	submitted := 0
	for _, item := range batch.Items {
		job := h.createWorkItem(item, batch.BatchID, results)
		if err := h.workerPool.SubmitJob(context.Background(), job); err != nil {
			log.Printf("❌ Batch %s stopped after %d items: %v", batch.BatchID, submitted, err)
			break
		}
		submitted++
	}

	timings := make([]models.ProfileTiming, 0, submitted)
	for len(timings) < submitted {
		select {
		case result := <-results:
			timings = append(timings, h.processResult(result))
		case <-h.workerPool.Done():
			log.Printf("⚠️  Batch %s interrupted with %d of %d results", batch.BatchID, len(timings), submitted)
			return
		}
	}

	totalBatchTime := time.Since(batchStartTime)
	if h.timingFile != "" {
		h.saveTimingResults(batch.BatchID, totalBatchTime, timings, h.workerPool.Workers())
	}

	log.Printf("🎉 Batch processing completed - ID: %s, Total time: %v", batch.BatchID, totalBatchTime)
}

// createWorkItem converts a batch item to a work item
func (h *BatchHandler) createWorkItem(item models.BatchItem, batchID string, results chan<- models.WorkResult) models.WorkItem {
	requestID := item.Request.ID
	if requestID == "" {
		requestID = utils.ItemID(batchID, item.Iteration)
	}
	return models.WorkItem{
		ID:        item.Iteration,
		RequestID: requestID,
		BatchID:   batchID,
		Iteration: item.Iteration,
		Request:   item.Request,
		StartTime: time.Now(),
		Results:   results,
	}
}

// processResult records the timing of a result and queues its webhook
func (h *BatchHandler) processResult(result models.WorkResult) models.ProfileTiming {
	timing := models.ProfileTiming{
		Iteration:      result.Iteration,
		ProcessingTime: result.ProcessingTime,
		ChiSquare:      result.Response.ChiSquare,
		Success:        result.Success,
	}
	if !result.Success {
		log.Printf("❌ Reconstruction %s failed: %v", result.RequestID, result.Err)
		return timing
	}

	h.workerPool.QueueWebhook(models.WebhookItem{
		RequestID: result.RequestID,
		BatchID:   result.BatchID,
		Iteration: result.Iteration,
		Response:  result.Response,
	})

	if !h.config.Run.Quiet {
		log.Printf("✅ Processed batch item %d", result.Iteration)
	}
	return timing
}

// saveTimingResults appends batch timing data to a CSV file for performance analysis
func (h *BatchHandler) saveTimingResults(batchID string, totalTime time.Duration, timings []models.ProfileTiming, concurrency int) {
	if len(timings) == 0 {
		return
	}

	var writeHeader bool
	if _, err := os.Stat(h.timingFile); os.IsNotExist(err) {
		writeHeader = true
	}

	file, err := os.OpenFile(h.timingFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Error opening timing file: %v", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if writeHeader {
		header := []string{
			"Timestamp",
			"BatchID",
			"TotalItems",
			"Concurrency",
			"TotalBatchTime_ms",
			"AvgItemTime_ms",
			"MinItemTime_ms",
			"MaxItemTime_ms",
			"SuccessRate",
			"AvgChiSquare",
			"ItemsPerSecond",
			"EfficiencyScore",
		}
		if err := writer.Write(header); err != nil {
			log.Printf("Error writing timing header: %v", err)
			return
		}
	}

	var totalItemTime time.Duration
	var minTime, maxTime time.Duration = time.Hour, 0
	var successful int
	var totalChiSq float64

	for _, timing := range timings {
		totalItemTime += timing.ProcessingTime
		minTime = min(minTime, timing.ProcessingTime)
		maxTime = max(maxTime, timing.ProcessingTime)
		if timing.Success {
			successful++
			totalChiSq += timing.ChiSquare
		}
	}

	n := len(timings)
	avgItemTime := totalItemTime / time.Duration(n)
	successRate := float64(successful) / float64(n) * 100
	avgChiSq := 0.0
	if successful > 0 {
		avgChiSq = totalChiSq / float64(successful)
	}
	itemsPerSecond := float64(n) / totalTime.Seconds()

	// 1.0 means a linear speedup over the pool
	efficiencyScore := totalItemTime.Seconds() / totalTime.Seconds() / float64(concurrency)

	ms := func(d time.Duration) string {
		return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1000000.0)
	}
	record := []string{
		time.Now().Format(time.RFC3339),
		batchID,
		fmt.Sprintf("%d", n),
		fmt.Sprintf("%d", concurrency),
		ms(totalTime),
		ms(avgItemTime),
		ms(minTime),
		ms(maxTime),
		fmt.Sprintf("%.1f", successRate),
		fmt.Sprintf("%.6e", avgChiSq),
		fmt.Sprintf("%.2f", itemsPerSecond),
		fmt.Sprintf("%.3f", efficiencyScore),
	}
	if err := writer.Write(record); err != nil {
		log.Printf("Error writing timing record: %v", err)
		return
	}

	log.Printf("📊 Timing saved: %d items, %d workers, %s ms total, %.2f%% success, %.3f efficiency",
		n, concurrency, ms(totalTime), successRate, efficiencyScore)
}
