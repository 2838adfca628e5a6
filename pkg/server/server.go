package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/handlers"
	"github.com/kacperjurak/goreflcore/pkg/profiling"
	"github.com/kacperjurak/goreflcore/pkg/webhook"
	"github.com/kacperjurak/goreflcore/pkg/worker"
)

// Server represents the HTTP server with all dependencies
type Server struct {
	config       *config.Config
	serverConfig *config.ServerConfig
	workerPool   *worker.Pool
	batch        *handlers.BatchHandler
	httpServer   *http.Server
	middleware   *profiling.Middleware
}

// Options holds configuration for creating a new server
type Options struct {
	Config       *config.Config
	ServerConfig *config.ServerConfig
	Processor    worker.ProcessorFunc
}

// New creates a new server instance
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.ServerConfig == nil {
		opts.ServerConfig = config.DefaultServerConfig()
	}

	var sender worker.Sender
	if opts.ServerConfig.WebhookURL != "" {
		sender = webhook.NewClient(opts.ServerConfig.WebhookURL, opts.Config)
	}

	workerPool := worker.New(worker.Options{
		Workers:   opts.ServerConfig.WorkerCount,
		Processor: opts.Processor,
		Sender:    sender,
	})

	server := &Server{
		config:       opts.Config,
		serverConfig: opts.ServerConfig,
		workerPool:   workerPool,
		middleware:   profiling.NewMiddleware(opts.ServerConfig.EnableProfiling),
	}

	server.setupRoutes(opts.Processor)
	return server
}

// setupRoutes configures HTTP routes and handlers
func (s *Server) setupRoutes(processor worker.ProcessorFunc) {
	mux := http.NewServeMux()

	reconstruct := handlers.NewReconstructHandler(s.config, processor)
	s.batch = handlers.NewBatchHandler(s.config, s.workerPool, s.serverConfig.TimingFile)

	mux.Handle("/reconstruct", s.middleware.ProfiledHandler("reconstruct-single", reconstruct))
	mux.Handle("/reconstruct/batch", s.middleware.ProfiledHandler("reconstruct-batch", s.batch))
	mux.HandleFunc("/health", s.healthHandler)

	s.httpServer = &http.Server{
		Addr:         ":" + s.serverConfig.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous reconstructions can be slow
		IdleTimeout:  60 * time.Second,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// healthHandler provides a simple health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","workers":%d,"timestamp":"%s"}`, s.workerPool.Workers(), time.Now().Format(time.RFC3339))
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	log.Println("🚀 Starting HTTP server on port", s.serverConfig.Port)
	log.Println("📡 Endpoints available:")
	log.Printf("  - Single: http://localhost:%s/reconstruct", s.serverConfig.Port)
	log.Printf("  - Batch:  http://localhost:%s/reconstruct/batch", s.serverConfig.Port)
	log.Printf("  - Health: http://localhost:%s/health", s.serverConfig.Port)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, lets running requests finish within
// ctx and then stops the worker pool, which cancels unfinished batches.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down server...")

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		log.Printf("⚠️ HTTP shutdown error: %v", err)
	}

	s.workerPool.Shutdown()
	s.batch.Wait()

	log.Println("✅ Server shutdown complete")
	return err
}
