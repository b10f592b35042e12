package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/config"
)

// ReviewTask tells the operator console that a subject needs attention.
type ReviewTask struct {
	EventID     string    `json:"event_id"`
	Type        string    `json:"type"`
	SubjectID   string    `json:"subject_id"`
	SubjectKind string    `json:"subject_kind"`
	GroupKind   string    `json:"group_kind,omitempty"`
	Sequence    int64     `json:"sequence"`
	Trigger     string    `json:"trigger,omitempty"`
	At          time.Time `json:"at"`
}

// ReviewQueue accepts review tasks for the operator console.
type ReviewQueue interface {
	Enqueue(ctx context.Context, task ReviewTask) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaReviewQueue writes review tasks to a Kafka topic keyed by subject id,
// so tasks for one subject stay on one partition in order.
type KafkaReviewQueue struct {
	writer  messageWriter
	timeout time.Duration
}

// NewReviewQueue returns a Kafka-backed queue, or a logging no-op queue when no broker is configured.
func NewReviewQueue(cfg config.KafkaConfig, logger *zap.Logger) ReviewQueue {
	if cfg.Broker == "" {
		logger.Warn("KAFKA_BROKER not provided; review tasks are only logged")
		return &LogReviewQueue{logger: logger}
	}

	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.UseTLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &KafkaReviewQueue{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Broker),
			Topic:        cfg.ReviewTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			Transport:    transport,
			WriteTimeout: 10 * time.Second,
		},
		timeout: 5 * time.Second,
	}
}

func (q *KafkaReviewQueue) Enqueue(ctx context.Context, task ReviewTask) error {
	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode review task: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.SubjectID),
		Value: value,
		Time:  task.At,
	})
}

func (q *KafkaReviewQueue) Close() error {
	return q.writer.Close()
}

// LogReviewQueue records tasks in the log only.
type LogReviewQueue struct {
	logger *zap.Logger
}

func (q *LogReviewQueue) Enqueue(_ context.Context, task ReviewTask) error {
	q.logger.Info("review task",
		zap.String("type", task.Type),
		zap.String("subject_id", task.SubjectID),
		zap.String("group_kind", task.GroupKind),
		zap.Int64("sequence", task.Sequence))
	return nil
}

func (q *LogReviewQueue) Close() error { return nil }
