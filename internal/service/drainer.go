package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Drainer runs drain cycles on a fixed interval so the queue moves without
// an external caller hitting the front door.
type Drainer struct {
	queueService *QueueService
	logger       *slog.Logger
	interval     time.Duration
	batchSize    int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewDrainer creates a new Drainer
func NewDrainer(queueService *QueueService, logger *slog.Logger, interval time.Duration, batchSize int) *Drainer {
	return &Drainer{
		queueService: queueService,
		logger:       logger.With("component", "drainer"),
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Start starts the drain loop
func (d *Drainer) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	d.logger.Info("drainer started", "interval", d.interval, "batch_size", d.batchSize)

	go d.run(ctx)
	return nil
}

// Stop stops the drain loop
func (d *Drainer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}

	close(d.stopChan)
	d.running = false
	d.logger.Info("drainer stopped")
}

// run is the main drain loop
func (d *Drainer) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Drain immediately on start
	d.drainOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

func (d *Drainer) drainOnce(ctx context.Context) {
	result, err := d.queueService.Drain(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("drain cycle failed", "error", err)
		return
	}

	if len(result.Processed) > 0 || len(result.Errors) > 0 {
		d.logger.Info("drain cycle complete",
			"processed", len(result.Processed),
			"errors", len(result.Errors),
		)
	}
}
