package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"FinArb/internal/domain/models"
	"FinArb/internal/domain/repository"
	pkgkafka "FinArb/pkg/kafka"
)

// ClickHouseAuditStore persists attempt summaries for offline
// reliability analysis. The engine core never reads this back; it is a
// write-only audit sink.
type ClickHouseAuditStore struct {
	db    *sql.DB
	table string
}

func NewClickHouseAuditStore(db *sql.DB, table string) repository.AuditSink {
	return &ClickHouseAuditStore{db: db, table: table}
}

func (s *ClickHouseAuditStore) RecordAttempts(ctx context.Context, attempts []models.AttemptResult) error {
	if len(attempts) == 0 {
		return nil
	}
	// multi-row VALUES insert keeps round-trips down; attempt volume is
	// bounded by plan depth so no chunking is needed per call
	values := make([]string, 0, len(attempts))
	args := make([]interface{}, 0, len(attempts)*7)
	for _, a := range attempts {
		outcome := "success"
		reason := ""
		if a.Failure != nil {
			outcome = string(a.Failure.Kind)
			reason = a.Failure.Reason
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			a.StartedAt,
			a.SourceID,
			string(a.Capability),
			a.Entity,
			outcome,
			reason,
			a.Latency.Milliseconds(),
		)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (ts, source, capability, entity, outcome, reason, latency_ms) VALUES %s",
		s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("audit insert: %w", err)
	}
	return nil
}

func (s *ClickHouseAuditStore) Close() error {
	return nil // connection pool owned by pkg/clickhouse client
}

// KafkaResultPublisher publishes canonical results to a topic for
// downstream consumers (alerting, persistence tiers).
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) repository.ResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) PublishResult(ctx context.Context, res *models.CanonicalResult) error {
	key := []byte(string(res.Capability) + ":" + res.Entity)
	return p.producer.Publish(ctx, p.topic, key, res)
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopAuditSink drops attempt records; used when ClickHouse is not
// configured.
type NopAuditSink struct{}

func (NopAuditSink) RecordAttempts(context.Context, []models.AttemptResult) error { return nil }
func (NopAuditSink) Close() error                                                 { return nil }

// NopResultPublisher drops results; used when Kafka is not configured.
type NopResultPublisher struct{}

func (NopResultPublisher) PublishResult(context.Context, *models.CanonicalResult) error { return nil }
func (NopResultPublisher) Close() error                                                 { return nil }
