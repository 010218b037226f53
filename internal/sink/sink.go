// Package sink delivers rendered frame records to their destinations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"firestige.xyz/tendium/internal/core"
)

const (
	TypeConsole = "console"
	TypeKafka   = "kafka"
)

// Record is one rendered frame.
type Record struct {
	Interface string
	Time      time.Time
	Body      []byte
}

// Sink accepts records until closed.
type Sink interface {
	Send(ctx context.Context, rec Record) error
	Close() error
}

// New builds the sinks named in types. Console output goes to stdout.
func New(types []string, kafkaCfg KafkaConfig) (Sink, error) {
	return newWithStdout(types, kafkaCfg, os.Stdout)
}

func newWithStdout(types []string, kafkaCfg KafkaConfig, stdout io.Writer) (Sink, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("no sink configured: %w", core.ErrConfigInvalid)
	}

	var sinks Multi
	for _, typ := range types {
		switch typ {
		case TypeConsole:
			sinks = append(sinks, NewConsole(stdout))
		case TypeKafka:
			k, err := NewKafka(kafkaCfg)
			if err != nil {
				sinks.Close()
				return nil, err
			}
			sinks = append(sinks, k)
		default:
			sinks.Close()
			return nil, fmt.Errorf("unknown sink %q: %w", typ, core.ErrConfigInvalid)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// Multi sends every record to each of its sinks.
type Multi []Sink

func (m Multi) Send(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
