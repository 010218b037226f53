package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/tendium/internal/core"
)

const (
	DefaultKafkaTopic        = "tendium-frames"
	DefaultKafkaCompression  = "snappy"
	DefaultKafkaBatchSize    = 100
	DefaultKafkaBatchTimeout = 100 * time.Millisecond
	DefaultKafkaMaxAttempts  = 3

	kafkaQueueLen = 10000
	// writerLinger bounds how long the writer holds a partial batch; batching
	// happens in batchLoop.
	writerLinger = time.Millisecond
)

// KafkaConfig configures the kafka sink.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Compression  string        `mapstructure:"compression"` // none|gzip|snappy|lz4
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

func (c *KafkaConfig) applyDefaults() {
	if c.Topic == "" {
		c.Topic = DefaultKafkaTopic
	}
	if c.Compression == "" {
		c.Compression = DefaultKafkaCompression
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultKafkaBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultKafkaMaxAttempts
	}
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	default:
		return 0, fmt.Errorf("invalid compression type %q: %w", name, core.ErrConfigInvalid)
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes records to a topic, keyed by interface name so frames of
// one interface stay ordered within a partition.
//
// Send only queues. A background loop writes a batch once BatchSize records
// are queued or BatchTimeout passes, so a slow broker never stalls the
// receive loop until the queue fills. Write failures are logged and counted.
type Kafka struct {
	cfg    KafkaConfig
	writer messageWriter

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}

	reported atomic.Uint64
	errors   atomic.Uint64
}

// NewKafka validates cfg, creates the writer and starts the batch loop.
// Brokers are dialed lazily.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	cfg.applyDefaults()
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: brokers are required: %w", core.ErrConfigInvalid)
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: writerLinger,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  codec,
	}

	slog.Info("kafka sink created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"batch_size", cfg.BatchSize,
		"batch_timeout", cfg.BatchTimeout,
		"compression", cfg.Compression,
	)
	return newKafka(cfg, w), nil
}

func newKafka(cfg KafkaConfig, w messageWriter) *Kafka {
	cfg.applyDefaults()
	k := &Kafka{
		cfg:    cfg,
		writer: w,
		queue:  make(chan kafka.Message, kafkaQueueLen),
		done:   make(chan struct{}),
	}
	go k.batchLoop()
	return k
}

// Send queues rec for the next batch. It blocks only while the queue is full.
func (k *Kafka) Send(ctx context.Context, rec Record) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return fmt.Errorf("kafka sink: %w", core.ErrSinkClosed)
	}

	msg := kafka.Message{
		Key:   []byte(rec.Interface),
		Value: rec.Body,
		Time:  rec.Time,
	}
	select {
	case k.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// batchLoop collects messages into batches and writes on size or timeout.
func (k *Kafka) batchLoop() {
	defer close(k.done)

	batch := make([]kafka.Message, 0, k.cfg.BatchSize)
	ticker := time.NewTicker(k.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := k.writer.WriteMessages(context.Background(), batch...); err != nil {
			k.errors.Add(uint64(len(batch)))
			slog.Warn("kafka batch write failed", "topic", k.cfg.Topic, "batch_size", len(batch), "error", err)
		} else {
			k.reported.Add(uint64(len(batch)))
		}
		batch = make([]kafka.Message, 0, k.cfg.BatchSize)
	}

	for {
		select {
		case msg, ok := <-k.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, msg)
			if len(batch) >= k.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close writes what is queued and closes the writer.
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()
	<-k.done

	if err := k.writer.Close(); err != nil {
		slog.Error("error closing kafka writer", "error", err)
		return err
	}
	slog.Info("kafka sink closed",
		"total_reported", k.reported.Load(),
		"total_errors", k.errors.Load(),
	)
	return nil
}
