package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jomigata/wiz-coco-sub004/internal/chat"
	"github.com/jomigata/wiz-coco-sub004/internal/risk"
)

type captureProcessor struct {
	mu    sync.Mutex
	units []risk.TextUnit
	err   error
	done  chan struct{}
}

func newCaptureProcessor(expect int) *captureProcessor {
	p := &captureProcessor{}
	if expect > 0 {
		p.done = make(chan struct{}, expect)
	}
	return p
}

func (p *captureProcessor) Process(ctx context.Context, unit risk.TextUnit) (chat.ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return chat.ProcessResult{}, p.err
	}
	p.units = append(p.units, unit)
	if p.done != nil {
		p.done <- struct{}{}
	}
	return chat.ProcessResult{NewCount: 1}, nil
}

func (p *captureProcessor) processed() []risk.TextUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]risk.TextUnit, len(p.units))
	copy(out, p.units)
	return out
}

func diaryUnit(sourceID string) risk.TextUnit {
	return risk.TextUnit{
		ClientID:   "client-1",
		SourceID:   sourceID,
		SourceKind: risk.KindDiaryEntry,
		Text:       "I feel a bit down today",
	}
}

func TestWorker_ProcessesEnqueuedUnits(t *testing.T) {
	processor := newCaptureProcessor(2)
	queue := NewMemoryQueue(8)
	worker := NewWorker(processor, queue, nil, nil, WithWorkerCount(2), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	require.NoError(t, worker.Enqueue(ctx, diaryUnit("diary-1")))
	require.NoError(t, worker.Enqueue(ctx, diaryUnit("diary-2")))

	for i := 0; i < 2; i++ {
		select {
		case <-processor.done:
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for units to be processed")
		}
	}
	cancel()
	worker.Wait()

	units := processor.processed()
	require.Len(t, units, 2)
	ids := map[string]bool{units[0].SourceID: true, units[1].SourceID: true}
	assert.True(t, ids["diary-1"])
	assert.True(t, ids["diary-2"])
}

func TestWorker_EnqueueRejectsInvalidUnit(t *testing.T) {
	worker := NewWorker(newCaptureProcessor(0), NewMemoryQueue(1), nil, nil)
	err := worker.Enqueue(context.Background(), risk.TextUnit{Text: "hello"})
	assert.ErrorIs(t, err, risk.ErrInvalidUnit)
}

// flakyProcessor fails a fixed number of times before succeeding.
type flakyProcessor struct {
	*captureProcessor
	mu       sync.Mutex
	failures int
}

func (p *flakyProcessor) Process(ctx context.Context, unit risk.TextUnit) (chat.ProcessResult, error) {
	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		p.mu.Unlock()
		return chat.ProcessResult{}, errors.New("transient store outage")
	}
	p.mu.Unlock()
	return p.captureProcessor.Process(ctx, unit)
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	processor := &flakyProcessor{captureProcessor: newCaptureProcessor(1), failures: 1}
	queue := NewMemoryQueue(4)
	worker := NewWorker(processor, queue, nil, nil)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, diaryUnit("diary-9")))
	messages, err := queue.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	worker.handleMessage(ctx, messages[0])

	units := processor.processed()
	require.Len(t, units, 1)
	assert.Equal(t, "diary-9", units[0].SourceID)

	// The unit succeeded, so nothing is redelivered.
	after, err := queue.Receive(ctx, 1, 1)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestWorker_ExhaustedRetriesReleaseTheUnit(t *testing.T) {
	processor := &flakyProcessor{captureProcessor: newCaptureProcessor(0), failures: processAttempts + 1}
	queue := NewMemoryQueue(4)
	worker := NewWorker(processor, queue, nil, nil)

	ctx := context.Background()
	require.NoError(t, worker.Enqueue(ctx, diaryUnit("diary-10")))
	messages, err := queue.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	worker.handleMessage(ctx, messages[0])

	// The unit went back on the queue for a later delivery.
	redelivered, err := queue.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, messages[0].Body, redelivered[0].Body)
	assert.Empty(t, processor.processed())
}

func TestWorker_MalformedPayloadIsDropped(t *testing.T) {
	processor := newCaptureProcessor(1)
	queue := NewMemoryQueue(4)
	worker := NewWorker(processor, queue, nil, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, queue.Send(ctx, "{not json"))
	// A valid unit behind it still gets through.
	body, err := json.Marshal(diaryUnit("diary-3"))
	require.NoError(t, err)
	require.NoError(t, queue.Send(ctx, string(body)))

	worker.Start(ctx)
	select {
	case <-processor.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for valid unit")
	}
	cancel()
	worker.Wait()

	units := processor.processed()
	require.Len(t, units, 1)
	assert.Equal(t, "diary-3", units[0].SourceID)
}
