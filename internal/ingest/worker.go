package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jomigata/wiz-coco-sub004/internal/chat"
	"github.com/jomigata/wiz-coco-sub004/internal/observability/metrics"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/pkg/logging"
)

// UnitProcessor runs the safety pipeline over one text unit.
type UnitProcessor interface {
	Process(ctx context.Context, unit risk.TextUnit) (chat.ProcessResult, error)
}

const (
	defaultWorkerCount = 2
	defaultWaitSeconds = 2
	defaultBatchSize   = 5
	maxWaitSeconds     = 20
	maxBatchSize       = 10

	processAttempts = 3
	retryBaseDelay  = 200 * time.Millisecond
)

// Worker consumes queued text units and feeds them through the pipeline.
// Diary entries and assessment answers arrive here; chat messages take the
// synchronous path through the chat service.
type Worker struct {
	processor UnitProcessor
	queue     Queue
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxBatchSize {
			size = maxBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker builds a worker pool over the given queue and processor.
func NewWorker(processor UnitProcessor, queue Queue, m *metrics.PipelineMetrics, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("ingest: processor required")
	}
	if queue == nil {
		panic("ingest: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		processor: processor,
		queue:     queue,
		metrics:   m,
		logger:    logger.Component("ingest-worker"),
		cfg:       cfg,
	}
}

// Enqueue serializes a text unit onto the queue for async processing.
func (w *Worker) Enqueue(ctx context.Context, unit risk.TextUnit) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(unit)
	if err != nil {
		return err
	}
	return w.queue.Send(ctx, string(body))
}

// Start launches the consumer goroutines.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all consumers exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("ingest worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("ingest worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive text units", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one queued unit. A malformed payload is dropped
// after logging; a pipeline failure is retried in place with bounded
// backoff, and a unit that still fails is released back to the queue for
// redelivery (the signal store's dedupe key absorbs the replay).
func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var unit risk.TextUnit
	if err := json.Unmarshal([]byte(msg.Body), &unit); err != nil {
		w.logger.Error("dropping malformed text unit", "error", err, "message_id", msg.ID)
		w.metrics.ObserveFailure("ingest-decode")
		w.deleteMessage(msg)
		return
	}

	result, err := w.processUnit(ctx, unit)
	if err != nil {
		w.logger.Error("text unit processing failed, releasing for redelivery",
			"error", err, "message_id", msg.ID, "client_id", unit.ClientID)
		w.metrics.ObserveFailure("ingest-process")
		w.releaseMessage(msg)
		return
	}

	w.logger.Info("text unit processed",
		"message_id", msg.ID,
		"client_id", unit.ClientID,
		"source_kind", unit.SourceKind,
		"signals_new", result.NewCount,
	)
	w.deleteMessage(msg)
}

// processUnit runs the pipeline, retrying transient failures with bounded
// backoff before giving up on this delivery.
func (w *Worker) processUnit(ctx context.Context, unit risk.TextUnit) (chat.ProcessResult, error) {
	var result chat.ProcessResult
	var err error

	delay := retryBaseDelay
	for attempt := 1; attempt <= processAttempts; attempt++ {
		result, err = w.processor.Process(ctx, unit)
		if err == nil || attempt == processAttempts {
			return result, err
		}
		w.logger.Warn("text unit processing failed, retrying",
			"error", err, "client_id", unit.ClientID, "attempt", attempt)

		select {
		case <-ctx.Done():
			return chat.ProcessResult{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return result, err
}

func (w *Worker) deleteMessage(msg queueMessage) {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete queue message", "error", err, "message_id", msg.ID)
	}
}

func (w *Worker) releaseMessage(msg queueMessage) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Release(releaseCtx, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to release queue message", "error", err, "message_id", msg.ID)
	}
}
