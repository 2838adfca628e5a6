package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kacperjurak/goreflcore/internal/processing"
	"github.com/kacperjurak/goreflcore/pkg/config"
	"github.com/kacperjurak/goreflcore/pkg/server"
)

func main() {
	cfg, serverConfig := parseFlags()

	pipeline := processing.NewPipeline(cfg)

	srv := server.New(server.Options{
		Config:       cfg,
		ServerConfig: serverConfig,
		Processor:    pipeline.Process,
	})

	done := setupGracefulShutdown(srv)

	if err := srv.Start(); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
	<-done
}

// parseFlags parses command line flags and returns configuration
func parseFlags() (*config.Config, *config.ServerConfig) {
	serverConfig := config.DefaultServerConfig()

	flag.StringVar(&serverConfig.ConfigPath, "config", "direfl.yaml", "YAML configuration file")
	flag.StringVar(&serverConfig.Port, "port", serverConfig.Port, "HTTP port")
	flag.IntVar(&serverConfig.WorkerCount, "threads", serverConfig.WorkerCount, "Number of batch workers")
	flag.StringVar(&serverConfig.WebhookURL, "webhook", serverConfig.WebhookURL, "Webhook receiving finished profiles (empty disables)")
	flag.StringVar(&serverConfig.TimingFile, "timing", "", "CSV file collecting batch timings")
	flag.BoolVar(&serverConfig.EnableProfiling, "profile", serverConfig.EnableProfiling, "Add timing headers to responses")
	quiet := flag.Bool("quiet", false, "Suppress verbose output")
	flag.Parse()

	cfg, err := config.LoadConfig(serverConfig.ConfigPath)
	if err != nil {
		log.Fatal("❌ Failed to load config:", err)
	}
	if *quiet {
		cfg.Run.Quiet = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("❌ Invalid config:", err)
	}
	return cfg, serverConfig
}

// setupGracefulShutdown shuts the server down on SIGINT or SIGTERM. The
// returned channel is closed once the shutdown completes.
func setupGracefulShutdown(srv *server.Server) <-chan struct{} {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		<-c
		log.Println("🛑 Received shutdown signal...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
		close(done)
	}()
	return done
}
