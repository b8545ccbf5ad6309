package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/repository"
	"github.com/Rat-cell/lockerhub/internal/storage"
)

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Publisher drains the outbox table to the broker. Tasks move
// CREATED -> PROCESSING -> DONE, or to FAILED with the attempt count and
// last error recorded; FAILED tasks under the attempt cap are retried.
type Publisher struct {
	txm      storage.TxManager
	repo     storage.OutboxTaskRepository
	producer Producer
	config   PublisherConfig
	logger   *zap.Logger

	wg             sync.WaitGroup
	shutdownSignal chan struct{}
	stopOnce       sync.Once
}

func NewPublisher(txm storage.TxManager, repo storage.OutboxTaskRepository, producer Producer, config PublisherConfig, logger *zap.Logger) *Publisher {
	return &Publisher{
		txm:            txm,
		repo:           repo,
		producer:       producer,
		config:         config,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
	}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("outbox publisher started", zap.Duration("poll_interval", p.config.PollInterval))
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("outbox batch failed", zap.Error(err))
			}
		case <-p.shutdownSignal:
			p.logger.Info("outbox publisher stopping")
			return
		case <-ctx.Done():
			p.Shutdown()
			return
		}
	}
}

func (p *Publisher) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.shutdownSignal)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			p.logger.Info("outbox publisher shutdown complete")
		case <-shutdownCtx.Done():
			p.logger.Warn("outbox publisher shutdown timed out")
		}

		if err := p.producer.Close(); err != nil {
			p.logger.Error("failed to close producer", zap.Error(err))
		}
	})
}

func (p *Publisher) processBatch(ctx context.Context) error {
	tasks, err := p.repo.GetProcessableTasks(ctx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to get processable tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	p.logger.Debug("outbox batch fetched", zap.Int("tasks", len(tasks)))

	// Claim the whole batch in one transaction so an overlapping publisher
	// skips it.
	tx, err := p.txm.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()
	for _, task := range tasks {
		if err := p.repo.UpdateTaskStatusTx(ctx, tx, task.ID, repository.TaskStatusProcessing, task.Attempts, nil, nil); err != nil {
			return fmt.Errorf("failed to mark task %s processing: %w", task.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit claim: %w", err)
	}

	for _, task := range tasks {
		select {
		case <-p.shutdownSignal:
			return fmt.Errorf("publisher shutdown during batch, task %s not processed", task.ID)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.processSingleTask(ctx, task); err != nil {
			p.logger.Error("outbox task failed",
				zap.String("task_id", task.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (p *Publisher) processSingleTask(ctx context.Context, task *repository.OutboxTask) error {
	key := []byte(task.ID.String())

	if err := p.producer.SendMessage(ctx, task.Topic, key, task.Payload); err != nil {
		newAttempts := task.Attempts + 1
		errMsg := err.Error()
		if newAttempts >= p.config.MaxAttempts {
			p.logger.Warn("outbox task reached max attempts",
				zap.String("task_id", task.ID.String()), zap.Int("attempts", newAttempts))
		}
		if updateErr := p.repo.UpdateTaskStatus(ctx, task.ID, repository.TaskStatusFailed, newAttempts, &errMsg, nil); updateErr != nil {
			return fmt.Errorf("failed to record send failure: %w", updateErr)
		}
		return err
	}

	now := time.Now().UTC()
	if err := p.repo.UpdateTaskStatus(ctx, task.ID, repository.TaskStatusDone, task.Attempts, nil, &now); err != nil {
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	return nil
}
