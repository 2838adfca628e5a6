package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/kacperjurak/goreflcore/pkg/models"
)

// ErrPoolClosed is returned when submitting to a pool that is shutting down.
var ErrPoolClosed = errors.New("worker: pool is shut down")

// Pool manages concurrent reconstruction workers
type Pool struct {
	jobs         chan models.WorkItem
	webhookQueue chan models.WebhookItem
	workers      int
	shutdown     chan struct{}
	once         sync.Once
	wg           sync.WaitGroup
	processor    ProcessorFunc
	sender       Sender

	// ctx is cancelled on Shutdown so running reconstructions stop early.
	ctx    context.Context
	cancel context.CancelFunc
}

// ProcessorFunc defines the signature for reconstruction processing
type ProcessorFunc func(ctx context.Context, req models.ReconstructRequest) (models.ProfileResponse, error)

// Sender delivers finished profiles.
type Sender interface {
	Send(ctx context.Context, item models.WebhookItem) error
}

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	Processor ProcessorFunc
	Sender    Sender
}

// New creates a new worker pool with specified configuration
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	// do not block queueing new jobs even if the workers are already busy
	pool := &Pool{
		jobs:         make(chan models.WorkItem, opts.Workers*2),
		webhookQueue: make(chan models.WebhookItem, opts.Workers*4), // webhooks are slower, hence the larger buffer
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		sender:       opts.Sender,
		ctx:          ctx,
		cancel:       cancel,
	}

	pool.start()
	return pool
}

// start initializes and starts all workers
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.webhookProcessor()

	log.Printf("🔧 Worker pool started with %d workers", p.workers)
}

// worker processes reconstruction jobs from the jobs channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			result := p.processJob(job)
			if job.Results == nil {
				continue
			}
			select {
			case job.Results <- result:
			case <-p.shutdown:
				return
			}

		case <-p.shutdown:
			return
		}
	}
}

// processJob runs one reconstruction and times it
func (p *Pool) processJob(job models.WorkItem) models.WorkResult {
	start := time.Now()
	resp, err := p.processor(p.ctx, job.Request)
	if resp.ID == "" {
		resp.ID = job.RequestID
	}

	return models.WorkResult{
		ID:             job.ID,
		RequestID:      job.RequestID,
		BatchID:        job.BatchID,
		Iteration:      job.Iteration,
		Response:       resp,
		Err:            err,
		ProcessingTime: time.Since(start),
		Success:        err == nil,
	}
}

// webhookProcessor handles webhook requests asynchronously
func (p *Pool) webhookProcessor() {
	defer p.wg.Done()

	for {
		select {
		case item := <-p.webhookQueue:
			// Send without blocking the queue
			p.wg.Add(1)
			go p.sendWebhook(item)

		case <-p.shutdown:
			return
		}
	}
}

func (p *Pool) sendWebhook(item models.WebhookItem) {
	defer p.wg.Done()

	if p.sender == nil {
		return
	}
	if err := p.sender.Send(p.ctx, item); err != nil {
		log.Printf("❌ Webhook for %s failed: %v", item.RequestID, err)
	}
}

// SubmitJob submits a job to the worker pool, blocking while the queue is
// full.
func (p *Pool) SubmitJob(ctx context.Context, job models.WorkItem) error {
	select {
	case <-p.shutdown:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		log.Printf("⚠️  Worker pool jobs channel full, job may be delayed")
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrPoolClosed
	}
}

// QueueWebhook queues a webhook for async processing
func (p *Pool) QueueWebhook(item models.WebhookItem) {
	select {
	case p.webhookQueue <- item:
	default:
		log.Printf("⚠️  Webhook queue full, dropping webhook for %s", item.RequestID)
	}
}

// Workers returns the number of processing workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Done is closed once Shutdown starts.
func (p *Pool) Done() <-chan struct{} {
	return p.shutdown
}

// Shutdown stops the workers and cancels running reconstructions. It is
// safe to call more than once.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		log.Printf("🛑 Shutting down worker pool...")
		close(p.shutdown)
		p.cancel()
		p.wg.Wait()
		log.Printf("✅ Worker pool shutdown complete")
	})
}
