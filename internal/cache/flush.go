package cache

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/database/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/robalyx/chronicle/internal/cache")

// shouldFlush reports whether the buffer is full or its oldest message has expired.
// Callers must hold the lock.
func (c *Cache) shouldFlush(now time.Time) bool {
	if len(c.buffer) == 0 {
		return false
	}

	return len(c.buffer) >= c.opts.BatchSize ||
		now.Sub(c.buffer[0].CreatedAt) >= c.opts.BatchExpiration
}

// maybeFlush submits a batch when a flush trigger holds. Errors are logged
// and the records stay buffered for the next attempt.
func (c *Cache) maybeFlush(ctx context.Context) {
	c.mu.Lock()
	due := c.shouldFlush(time.Now())
	c.mu.Unlock()

	if !due {
		return
	}

	if err := c.SubmitBatch(ctx); err != nil {
		c.logger.Error("Failed to flush message batch", zap.Error(err))
	}
}

// SubmitBatch writes up to BatchSize messages from the head of the buffer to
// the store. Concurrent callers share a single flush. The flush is detached
// from the caller's cancellation and bounded by FlushTimeout instead.
func (c *Cache) SubmitBatch(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	_, err, _ := c.flights.Do("flush", func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.opts.FlushTimeout)
		defer cancel()

		return nil, c.flush(ctx)
	})

	return err
}

// FlushAll submits batches until the buffer is empty or a flush fails.
func (c *Cache) FlushAll(ctx context.Context) error {
	for c.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.SubmitBatch(ctx); err != nil {
			return err
		}
	}

	return nil
}

// flush runs one batch write. Only records whose revision is unchanged since
// the snapshot are removed afterwards, so edits made during the write stay
// buffered and are written again by a later flush.
func (c *Cache) flush(ctx context.Context) error {
	c.mu.Lock()
	n := min(len(c.buffer), c.opts.BatchSize)
	if n == 0 {
		c.mu.Unlock()
		return nil
	}

	written := make(map[snowflake.ID]uint64, n)
	rows := make([]*types.Message, 0, n)
	c.inflight = make(map[snowflake.ID]struct{}, n)
	c.tombstones = nil

	for _, record := range c.buffer[:n] {
		written[record.ID] = record.revision
		rows = append(rows, record.row())
		c.inflight[record.ID] = struct{}{}
	}
	c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "cache.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("cache.batch_size", n))

	start := time.Now()
	err := c.store.FlushMessages(ctx, rows)
	flushDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	tombstones := c.tombstones
	c.inflight = nil
	c.tombstones = nil

	if err != nil {
		c.mu.Unlock()

		flushes.WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "flush failed")

		return fmt.Errorf("failed to flush %d messages: %w", n, err)
	}

	var flushed []*CachedMessage
	c.buffer = slices.DeleteFunc(c.buffer, func(m *CachedMessage) bool {
		revision, ok := written[m.ID]
		if !ok || revision != m.revision {
			return false
		}

		flushed = append(flushed, m.clone())
		delete(c.index, m.ID)

		return true
	})
	remaining := len(c.buffer)
	c.mu.Unlock()

	flushes.WithLabelValues("success").Inc()
	bufferedMessages.Set(float64(remaining))

	if len(flushed) > 0 {
		if err := c.mirror.Delete(ctx, flushed...); err != nil {
			c.logMirrorError("delete", err, zap.Int("count", len(flushed)))
		}
		c.restoreMirror(ctx, flushed)
	}

	// Messages deleted while their batch was being written
	if len(tombstones) > 0 {
		if _, err := c.store.DeleteMessagesByIDs(ctx, tombstones); err != nil {
			c.logger.Error("Failed to remove messages deleted during flush",
				zap.Error(err),
				zap.Int("count", len(tombstones)))
		}
	}

	c.logger.Debug("Flushed message batch",
		zap.Int("written", n),
		zap.Int("removed", len(flushed)),
		zap.Int("remaining", remaining),
		zap.Duration("duration", time.Since(start)))

	return nil
}
