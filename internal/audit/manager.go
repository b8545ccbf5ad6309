package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager batches audit entries and fans them out to the configured sinks on
// a small worker pool. Entries are flushed when a batch fills or when the
// flush timeout elapses, whichever comes first.
type Manager struct {
	workerCount int
	batchSize   int
	timeout     time.Duration
	sinks       []Sink
	logger      *zap.Logger

	inputChan  chan Entry
	batchChan  chan []Entry
	shutdownCh chan struct{}
	once       sync.Once
	wg         sync.WaitGroup
}

func NewManager(workerCount, batchSize int, timeout time.Duration, logger *zap.Logger, sinks ...Sink) *Manager {
	return &Manager{
		workerCount: workerCount,
		batchSize:   batchSize,
		timeout:     timeout,
		sinks:       sinks,
		logger:      logger,
		inputChan:   make(chan Entry, workerCount*batchSize*2),
		batchChan:   make(chan []Entry, workerCount*2),
		shutdownCh:  make(chan struct{}),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.runAggregator(ctx)

	for i := 0; i < m.workerCount; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx, i)
	}
}

// Record queues one entry. It never blocks the business path: when the queue
// is saturated or the context is done, the entry is written straight to the
// log instead.
func (m *Manager) Record(ctx context.Context, entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	select {
	case m.inputChan <- entry:
	default:
		m.logEntry(entry)
	}
}

func (m *Manager) Shutdown(ctx context.Context) {
	m.once.Do(func() {
		close(m.shutdownCh)

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			m.logger.Info("audit manager shutdown completed")
		case <-ctx.Done():
			m.logger.Warn("audit manager shutdown interrupted")
		}
	})
}

func (m *Manager) runAggregator(ctx context.Context) {
	defer m.wg.Done()

	var (
		batch    []Entry
		timer    *time.Timer
		timeoutC <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
		if len(batch) > 0 {
			m.dispatchBatch(batch)
		}
		close(m.batchChan)
	}()

	for {
		select {
		case entry := <-m.inputChan:
			batch = append(batch, entry)
			if len(batch) >= m.batchSize {
				m.dispatchBatch(batch)
				batch = nil
				timeoutC = nil
			} else if len(batch) == 1 {
				timer = time.NewTimer(m.timeout)
				timeoutC = timer.C
			}

		case <-timeoutC:
			m.dispatchBatch(batch)
			batch = nil
			timeoutC = nil

		case <-ctx.Done():
			return

		case <-m.shutdownCh:
			return
		}
	}
}

func (m *Manager) dispatchBatch(batch []Entry) {
	batchCopy := make([]Entry, len(batch))
	copy(batchCopy, batch)

	select {
	case m.batchChan <- batchCopy:
	default:
		// Workers are behind; write the batch inline rather than drop it.
		m.writeBatch(context.Background(), batchCopy)
	}
}

func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()

	for {
		select {
		case batch, ok := <-m.batchChan:
			if !ok {
				return
			}
			m.writeBatch(ctx, batch)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case batch, ok := <-m.batchChan:
					if !ok {
						return
					}
					m.writeBatch(context.Background(), batch)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) writeBatch(ctx context.Context, batch []Entry) {
	for _, sink := range m.sinks {
		if err := sink.WriteBatch(ctx, batch); err != nil {
			m.logger.Error("audit sink write failed",
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
		}
	}
}

func (m *Manager) logEntry(entry Entry) {
	m.logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("parcel_id", entry.ParcelID),
		zap.String("locker_id", entry.LockerID),
		zap.String("old_status", entry.OldStatus),
		zap.String("new_status", entry.NewStatus),
		zap.String("actor", entry.ActorUsername),
		zap.Any("details", entry.Details))
}
