package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProducerOptionsApply(t *testing.T) {
	cfg := &ProducerConfig{Compression: "gzip", BatchSize: 100, BatchTimeout: time.Second}

	for _, opt := range []ProducerOption{
		WithBrokers([]string{"broker:9092"}),
		WithCompression("snappy"),
		WithRequiredAcks(-1),
		WithBatchSize(250),
		WithBatchTimeout(500 * time.Millisecond),
		WithAsync(true),
		WithHashByKey(true),
	} {
		opt(cfg)
	}

	assert.Equal(t, []string{"broker:9092"}, cfg.Brokers)
	assert.Equal(t, "snappy", cfg.Compression)
	assert.Equal(t, -1, cfg.RequiredAcks)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchTimeout)
	assert.True(t, cfg.Async)
	assert.True(t, cfg.HashByKey)
}

func TestProducerOptionsKeepDefaultsOnZeroValues(t *testing.T) {
	cfg := &ProducerConfig{Compression: "gzip", BatchSize: 100, BatchTimeout: time.Second}

	WithCompression("")(cfg)
	WithBatchSize(0)(cfg)
	WithBatchTimeout(0)(cfg)

	assert.Equal(t, "gzip", cfg.Compression)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchTimeout)
}
