package storage

import (
	"context"
	"sync"
	"time"

	"github.com/mselser95/reservation-escrow/internal/escrow"
	"go.uber.org/zap"
)

// Journal drains the escrow event log into a Storage backend. It implements
// escrow.Emitter; Emit never blocks and drops events when the buffer is
// full (the in-memory log still has them).
type Journal struct {
	storage Storage
	logger  *zap.Logger
	timeout time.Duration
	events  chan escrow.Event
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// JournalConfig holds journal configuration.
type JournalConfig struct {
	Storage      Storage
	Logger       *zap.Logger
	BufferSize   int
	StoreTimeout time.Duration
}

// NewJournal creates a journal worker.
func NewJournal(cfg *JournalConfig) *Journal {
	size := cfg.BufferSize
	if size <= 0 {
		size = 1024
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Journal{
		storage: cfg.Storage,
		logger:  cfg.Logger,
		timeout: timeout,
		events:  make(chan escrow.Event, size),
	}
}

// Emit queues evt for storage.
func (j *Journal) Emit(evt escrow.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}

	select {
	case j.events <- evt:
		JournalQueueDepth.Set(float64(len(j.events)))
	default:
		JournalDroppedTotal.Inc()
		j.logger.Warn("journal-buffer-full",
			zap.Uint64("sequence", evt.Sequence),
			zap.String("event-type", evt.Type))
	}
}

// Start starts the journal loop.
func (j *Journal) Start(ctx context.Context) {
	j.logger.Info("journal-starting")
	j.wg.Add(1)
	go j.loop(ctx)
}

func (j *Journal) loop(ctx context.Context) {
	defer j.wg.Done()

	for {
		select {
		case <-ctx.Done():
			j.drain()
			j.logger.Info("journal-stopping")
			return
		case evt, ok := <-j.events:
			if !ok {
				j.logger.Info("journal-channel-closed")
				return
			}
			j.store(evt)
		}
	}
}

// drain stores whatever is already buffered.
func (j *Journal) drain() {
	for {
		select {
		case evt, ok := <-j.events:
			if !ok {
				return
			}
			j.store(evt)
		default:
			return
		}
	}
}

func (j *Journal) store(evt escrow.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	err := j.storage.StoreEvent(ctx, &evt)
	StoreDurationSeconds.Observe(time.Since(start).Seconds())
	JournalQueueDepth.Set(float64(len(j.events)))

	if err != nil {
		StoreErrorsTotal.Inc()
		j.logger.Error("journal-store-failed",
			zap.Uint64("sequence", evt.Sequence),
			zap.String("event-type", evt.Type),
			zap.Error(err))
		return
	}
	EventsStoredTotal.WithLabelValues(evt.Type).Inc()
}

// Close stops accepting events, waits for the loop to finish the buffer and
// closes the storage.
func (j *Journal) Close() error {
	j.logger.Info("closing-journal")

	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.events)
	}
	j.mu.Unlock()

	j.wg.Wait()
	return j.storage.Close()
}
