// Package kafka publishes audit events. Events land in the outbox table in
// the same transaction that produced them; the Publisher drains the table to
// the broker.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer interface {
	SendMessage(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

// KafkaProducer writes to a real broker via segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaProducer(brokers []string, logger *zap.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
	}
	logger.Info("initialized kafka producer", zap.Strings("brokers", brokers))
	return &KafkaProducer{writer: writer, logger: logger}
}

func (p *KafkaProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to topic %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	p.logger.Info("closing kafka producer")
	return p.writer.Close()
}

// ConsoleProducer stands in for a broker in local development.
type ConsoleProducer struct {
	logger *zap.Logger
}

func NewConsoleProducer(logger *zap.Logger) *ConsoleProducer {
	logger.Info("initialized console kafka producer")
	return &ConsoleProducer{logger: logger}
}

func (p *ConsoleProducer) SendMessage(ctx context.Context, topic string, key []byte, value []byte) error {
	select {
	case <-time.After(50 * time.Millisecond):
		fmt.Printf("\n--- KAFKA (CONSOLE) ---\nTopic: %s\nKey: %s\nValue: %s\n--- END KAFKA ---\n",
			topic, string(key), string(value))
		return nil
	case <-ctx.Done():
		p.logger.Warn("console producer send cancelled",
			zap.String("topic", topic), zap.ByteString("key", key))
		return ctx.Err()
	}
}

func (p *ConsoleProducer) Close() error {
	p.logger.Info("closing console kafka producer")
	return nil
}
