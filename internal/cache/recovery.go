package cache

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// Recover repopulates the buffer from the mirror. It must run before events
// are delivered. Recovered records are ordered by creation time and placed
// ahead of anything already buffered; ids that are already buffered are kept
// as they are. A flush check runs afterwards since recovered records may be
// past the expiration window.
func (c *Cache) Recover(ctx context.Context) (int, error) {
	start := time.Now()

	records, err := c.mirror.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load mirrored messages: %w", err)
	}

	slices.SortFunc(records, func(a, b *CachedMessage) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	c.mu.Lock()
	merged := make([]*CachedMessage, 0, len(records)+len(c.buffer))
	recovered := 0

	for _, record := range records {
		if _, exists := c.index[record.ID]; exists {
			continue
		}

		c.revision++
		record.revision = c.revision
		c.index[record.ID] = record
		merged = append(merged, record)
		recovered++
	}

	c.buffer = append(merged, c.buffer...)
	size := len(c.buffer)
	c.mu.Unlock()

	bufferedMessages.Set(float64(size))

	c.logger.Info("Recovered cached messages",
		zap.Int("recovered", recovered),
		zap.Int("buffered", size),
		zap.Duration("duration", time.Since(start)))

	c.maybeFlush(ctx)

	return recovered, nil
}
