// Consumer tails the audit-events topic and prints each event. It exists for
// local verification of the outbox pipeline.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Rat-cell/lockerhub/internal/config"
	"github.com/Rat-cell/lockerhub/internal/logger"
)

const groupID = "audit-events-consumer-group"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logger.New()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(cfg.Kafka.Brokers, ","),
		GroupID:        groupID,
		Topic:          cfg.Kafka.AuditTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Error("failed to close kafka reader", zap.Error(err))
		}
	}()

	log.Info("audit consumer connected",
		zap.String("topic", cfg.Kafka.AuditTopic),
		zap.String("brokers", cfg.Kafka.Brokers))

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("shutdown signal received, stopping consumer")
				return
			}
			log.Error("failed to read message", zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		fmt.Printf("\n--- AUDIT EVENT ---\n")
		fmt.Printf("Timestamp: %s\n", m.Time.Format(time.RFC3339))
		fmt.Printf("Partition: %d\n", m.Partition)
		fmt.Printf("Offset:    %d\n", m.Offset)
		fmt.Printf("Key:       %s\n", string(m.Key))
		fmt.Printf("Value:     %s\n", string(m.Value))
		fmt.Println("--- END EVENT ---")
	}
}
