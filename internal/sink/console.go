package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Console writes record bodies to a writer, one after another.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	count atomic.Uint64
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Send(_ context.Context, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(rec.Body); err != nil {
		return fmt.Errorf("console sink: %w", err)
	}
	c.count.Add(1)
	return nil
}

func (c *Console) Close() error {
	slog.Debug("console sink closed", "total_reported", c.count.Load())
	return nil
}
