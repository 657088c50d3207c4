// Package consumer feeds envelopes read from Kafka into an ingest pipeline.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/envelope/internal/config"
	"firestige.xyz/envelope/internal/ingest"
	"firestige.xyz/envelope/internal/log"
	"firestige.xyz/envelope/pkg/envelope"
)

// Headers added to every record from its Kafka metadata, unless the
// envelope sets them itself.
const (
	HeaderTopic     = "kafka_topic"
	HeaderPartition = "kafka_partition"
	HeaderOffset    = "kafka_offset"
	HeaderKey       = "kafka_key"
)

const fetchBackoff = 5 * time.Second

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Ingester processes one raw record. *ingest.Ingestor implements it.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, extra *envelope.Headers) (*envelope.Message, error)
}

// KafkaConsumer reads envelopes from a topic and ingests them.
type KafkaConsumer struct {
	cfg     config.KafkaConfig
	ingest  Ingester
	backoff time.Duration

	mu     sync.Mutex
	reader Reader
}

// NewKafkaConsumer creates a consumer group reader for cfg.
func NewKafkaConsumer(cfg config.KafkaConfig, in Ingester) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}

	var startOffset int64
	switch cfg.AutoOffsetReset {
	case "earliest":
		startOffset = kafka.FirstOffset
	case "latest", "":
		startOffset = kafka.LastOffset
	default:
		return nil, fmt.Errorf("invalid auto_offset_reset %q", cfg.AutoOffsetReset)
	}

	minBytes, maxBytes := cfg.MinBytes, cfg.MaxBytes
	if minBytes <= 0 {
		minBytes = 1
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    startOffset,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: time.Second,
		MaxWait:        1 * time.Second,
	})

	return newKafkaConsumer(cfg, reader, in), nil
}

func newKafkaConsumer(cfg config.KafkaConfig, reader Reader, in Ingester) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:     cfg,
		ingest:  in,
		backoff: fetchBackoff,
		reader:  reader,
	}
}

// Start consumes until ctx is cancelled or the consumer is stopped.
// Every fetched record is committed once ingested, including records that
// fail to parse: a malformed envelope will not parse on redelivery either.
func (c *KafkaConsumer) Start(ctx context.Context) error {
	reader := c.currentReader()
	if reader == nil {
		return fmt.Errorf("consumer is stopped")
	}

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"brokers":  c.cfg.Brokers,
		"topic":    c.cfg.Topic,
		"group_id": c.cfg.GroupID,
	})
	logger.Info("kafka consumer started")

	for {
		select {
		case <-ctx.Done():
			logger.WithField("reason", ctx.Err()).Info("kafka consumer stopped")
			return ctx.Err()
		default:
		}

		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, io.EOF) {
				logger.Info("kafka reader closed")
				return nil
			}
			logger.WithError(err).Error("failed to fetch kafka message")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
				continue
			}
		}

		c.processMessage(ctx, msg)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.WithError(err).Error("failed to commit message")
		}
	}
}

func (c *KafkaConsumer) processMessage(ctx context.Context, msg kafka.Message) {
	_, err := c.ingest.Ingest(ctx, msg.Value, RecordHeaders(msg))
	if err == nil {
		return
	}

	logger := log.GetLogger().WithFields(map[string]interface{}{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})
	var pe *envelope.ParseError
	switch {
	case errors.Is(err, ingest.ErrDuplicate):
		logger.Debug("skipping duplicate record")
	case errors.As(err, &pe):
		// Already logged by the ingestor; the record is dropped.
	default:
		logger.WithError(err).Error("failed to process record")
	}
}

// RecordHeaders converts the Kafka headers and metadata of msg into
// envelope headers. Kafka header values are taken as strings.
func RecordHeaders(msg kafka.Message) *envelope.Headers {
	h := envelope.NewHeaders()
	for _, kh := range msg.Headers {
		h.Set(kh.Key, string(kh.Value))
	}
	h.Set(HeaderTopic, msg.Topic)
	h.Set(HeaderPartition, int64(msg.Partition))
	h.Set(HeaderOffset, msg.Offset)
	if len(msg.Key) > 0 {
		h.Set(HeaderKey, string(msg.Key))
	}
	return h
}

func (c *KafkaConsumer) currentReader() Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader
}

// Stop closes the reader, which also ends a running Start.
// Always nils the reader to prevent double-close, even if Close() returns an error.
func (c *KafkaConsumer) Stop() error {
	c.mu.Lock()
	reader := c.reader
	c.reader = nil
	c.mu.Unlock()

	if reader == nil {
		return nil
	}
	log.GetLogger().Info("closing kafka consumer")
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}
