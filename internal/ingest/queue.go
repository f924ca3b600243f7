package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// queueMessage is one raw payload pulled off the ingest queue.
type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Queue transports text-unit jobs between producers and the worker pool.
// A received message stays in flight until Delete acknowledges it or
// Release returns it for redelivery.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
	Release(ctx context.Context, receiptHandle string) error
}

// MemoryQueue is a Queue backed by an in-memory buffered channel, used in
// tests and single-process deployments. Received messages are held in an
// in-flight set so a Release puts them back for redelivery instead of
// losing them.
type MemoryQueue struct {
	ch chan queueMessage

	mu       sync.Mutex
	inflight map[string]queueMessage
}

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:       make(chan queueMessage, buffer),
		inflight: make(map[string]queueMessage),
	}
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	msg := queueMessage{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timer *time.Timer
	if waitSeconds > 0 {
		timer = time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
	}

	if timer == nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg := <-q.ch:
			return q.collect(ctx, msg, maxMessages), nil
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(ctx, msg, maxMessages), nil
	}
}

// Delete acknowledges a message, dropping it from the in-flight set.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, receiptHandle)
	return nil
}

// Release puts an in-flight message back on the queue for redelivery.
// Releasing an acknowledged or unknown handle is a no-op.
func (q *MemoryQueue) Release(ctx context.Context, receiptHandle string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q.mu.Lock()
	msg, ok := q.inflight[receiptHandle]
	if ok {
		delete(q.inflight, receiptHandle)
	}
	q.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) collect(ctx context.Context, first queueMessage, max int) []queueMessage {
	messages := make([]queueMessage, 0, max)
	messages = append(messages, q.track(first))

	for len(messages) < max {
		select {
		case <-ctx.Done():
			return messages
		case msg := <-q.ch:
			messages = append(messages, q.track(msg))
		default:
			return messages
		}
	}
	return messages
}

func (q *MemoryQueue) track(msg queueMessage) queueMessage {
	q.mu.Lock()
	q.inflight[msg.ReceiptHandle] = msg
	q.mu.Unlock()
	return msg
}

var _ Queue = (*MemoryQueue)(nil)
