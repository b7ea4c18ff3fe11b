// Package cache buffers inbound guild messages in memory, mirrors them to Redis
// and writes them to Postgres in batches.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/robalyx/chronicle/internal/setup/config"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
	"go.uber.org/zap"
)

// EmptyContent replaces the text of messages that have none.
const EmptyContent = "`<None>`"

const (
	DefaultBatchSize          = 1000
	DefaultBatchExpiration    = 30 * time.Minute
	DefaultMaxFileSize        = 3_000_000
	DefaultMaxAttachmentsSize = 10_000_000
	DefaultFlushTimeout       = time.Minute
	DefaultSweepTimeout       = 30 * time.Second

	// maxMirrorSyncs bounds how often a mirror write is repeated to catch up with the buffer.
	maxMirrorSyncs = 3
)

// ErrNotFound is returned when a message is not buffered.
var ErrNotFound = errors.New("message not in cache")

// Cipher seals message text.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// Store persists flushed batches.
type Store interface {
	// FlushMessages upserts the guilds of the batch and inserts its messages in one transaction.
	FlushMessages(ctx context.Context, messages []*types.Message) error
	// DeleteMessagesByIDs removes stored messages.
	DeleteMessagesByIDs(ctx context.Context, messageIDs []uint64) (int, error)
}

// Mirror is the durable side-store that lets the buffer survive a restart.
type Mirror interface {
	Save(ctx context.Context, message *CachedMessage) error
	Delete(ctx context.Context, messages ...*CachedMessage) error
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	LoadAll(ctx context.Context) ([]*CachedMessage, error)
}

// Fetcher downloads attachment payloads.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options controls flush thresholds and attachment limits.
type Options struct {
	BatchSize          int
	BatchExpiration    time.Duration
	MaxFileSize        int
	MaxAttachmentsSize int
	FlushTimeout       time.Duration
	SweepTimeout       time.Duration
}

// DefaultOptions returns the standard retention settings.
func DefaultOptions() Options {
	return Options{
		BatchSize:          DefaultBatchSize,
		BatchExpiration:    DefaultBatchExpiration,
		MaxFileSize:        DefaultMaxFileSize,
		MaxAttachmentsSize: DefaultMaxAttachmentsSize,
		FlushTimeout:       DefaultFlushTimeout,
		SweepTimeout:       DefaultSweepTimeout,
	}
}

// OptionsFromConfig builds options from the bot configuration, keeping defaults for unset values.
func OptionsFromConfig(cfg *config.Cache) Options {
	opts := DefaultOptions()

	if cfg.BatchSize > 0 {
		opts.BatchSize = cfg.BatchSize
	}

	if cfg.BatchExpiration > 0 {
		opts.BatchExpiration = time.Duration(cfg.BatchExpiration) * time.Minute
	}

	if cfg.MaxFileSize > 0 {
		opts.MaxFileSize = cfg.MaxFileSize
	}

	if cfg.MaxAttachmentsSize > 0 {
		opts.MaxAttachmentsSize = cfg.MaxAttachmentsSize
	}

	return opts
}

// Cache is the in-memory write-back buffer of recent guild messages.
// Buffer order is arrival order and flushes always drain from the head.
type Cache struct {
	cipher  Cipher
	store   Store
	mirror  Mirror
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	buffer   []*CachedMessage
	index    map[snowflake.ID]*CachedMessage
	revision uint64

	// inflight holds the ids written by the running flush; ids removed from
	// the buffer meanwhile are collected in tombstones and deleted after commit.
	inflight   map[snowflake.ID]struct{}
	tombstones []uint64

	flights  singleflight.Group
	sweeps   conc.WaitGroup
	loop     conc.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache with an empty buffer.
func New(cipher Cipher, store Store, mirror Mirror, fetcher Fetcher, opts Options, logger *zap.Logger) *Cache {
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}

	if opts.BatchExpiration <= 0 {
		opts.BatchExpiration = defaults.BatchExpiration
	}

	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaults.FlushTimeout
	}

	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = defaults.SweepTimeout
	}

	return &Cache{
		cipher:  cipher,
		store:   store,
		mirror:  mirror,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.Named("message_cache"),
		index:   make(map[snowflake.ID]*CachedMessage),
		stop:    make(chan struct{}),
	}
}

// CacheMessage admits a guild message into the buffer. Direct and webhook messages are ignored.
// Attachments are retained first-fit in their original order within the size limits.
// A message that is already buffered is replaced in place.
func (c *Cache) CacheMessage(ctx context.Context, msg *Message) error {
	if msg.GuildID == 0 || msg.WebhookID != 0 {
		return nil
	}

	content := msg.Content
	if content == "" {
		content = EmptyContent
	}

	encrypted, err := c.cipher.Encrypt(content)
	if err != nil {
		return fmt.Errorf("failed to encrypt message %s: %w", msg.ID, err)
	}

	record := &CachedMessage{
		ID:              msg.ID,
		GuildID:         msg.GuildID,
		ChannelID:       msg.ChannelID,
		AuthorID:        msg.AuthorID,
		Content:         encrypted,
		AttachmentCount: len(msg.Attachments),
		Attachments:     c.encodeAttachments(ctx, msg),
		CreatedAt:       msg.CreatedAt,
	}

	c.mu.Lock()
	c.revision++
	record.revision = c.revision
	if existing, ok := c.index[record.ID]; ok {
		*existing = *record
	} else {
		c.buffer = append(c.buffer, record)
		c.index[record.ID] = record
	}
	snapshot := record.clone()
	size := len(c.buffer)
	c.mu.Unlock()

	admittedMessages.Inc()
	bufferedMessages.Set(float64(size))

	c.mirrorSave(ctx, snapshot)
	c.maybeFlush(ctx)

	return nil
}

// GetCacheMessage returns a decrypted copy of a buffered message.
func (c *Cache) GetCacheMessage(id snowflake.ID) (*DecryptedMessage, error) {
	c.mu.Lock()
	record, ok := c.index[id]
	if ok {
		record = record.clone()
	}
	c.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	decrypted, err := record.Decrypt(c.cipher)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message %s: %w", id, err)
	}

	return decrypted, nil
}

// Contains reports whether a message is buffered.
func (c *Cache) Contains(id snowflake.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.index[id]

	return ok
}

// UpdateCacheMessage replaces the text of a buffered message without moving it.
// Returns false when the message is not buffered.
func (c *Cache) UpdateCacheMessage(ctx context.Context, id snowflake.ID, content string) (bool, error) {
	if content == "" {
		content = EmptyContent
	}

	encrypted, err := c.cipher.Encrypt(content)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt message %s: %w", id, err)
	}

	c.mu.Lock()
	record, ok := c.index[id]
	if ok {
		c.revision++
		record.Content = encrypted
		record.revision = c.revision
		record = record.clone()
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}

	c.mirrorSave(ctx, record)

	return true, nil
}

// DeleteCacheMessage removes a buffered message and its mirror entry.
func (c *Cache) DeleteCacheMessage(ctx context.Context, id snowflake.ID) bool {
	removed := c.removeWhere(func(m *CachedMessage) bool { return m.ID == id })
	if len(removed) == 0 {
		return false
	}

	if err := c.mirror.Delete(ctx, removed...); err != nil {
		c.logMirrorError("delete", err, zap.Uint64("messageID", uint64(id)))
	}
	c.restoreMirror(ctx, removed)

	return true
}

// DeleteCacheMessagesByGuild removes every buffered message of a guild.
// The mirror is swept in the background.
func (c *Cache) DeleteCacheMessagesByGuild(ctx context.Context, guildID snowflake.ID) int {
	removed := c.removeWhere(func(m *CachedMessage) bool { return m.GuildID == guildID })
	c.sweep(ctx, GuildPattern(guildID))

	return len(removed)
}

// DeleteCacheMessagesByChannel removes every buffered message of a channel.
// The mirror is swept in the background.
func (c *Cache) DeleteCacheMessagesByChannel(ctx context.Context, channelID snowflake.ID) int {
	removed := c.removeWhere(func(m *CachedMessage) bool { return m.ChannelID == channelID })
	c.sweep(ctx, ChannelPattern(channelID))

	return len(removed)
}

// DeleteCacheMessagesByAuthor removes every buffered message of a user.
// The mirror is swept in the background.
func (c *Cache) DeleteCacheMessagesByAuthor(ctx context.Context, authorID snowflake.ID) int {
	removed := c.removeWhere(func(m *CachedMessage) bool { return m.AuthorID == authorID })
	c.sweep(ctx, AuthorPattern(authorID))

	return len(removed)
}

// Len returns the number of buffered messages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.buffer)
}

// StartExpiryCheck periodically flushes the buffer once its oldest message expires,
// so an idle guild does not hold messages past the expiration.
func (c *Cache) StartExpiryCheck(interval time.Duration) {
	c.loop.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.maybeFlush(context.Background())
			}
		}
	})
}

// Shutdown stops the expiry check, waits for background sweeps and flushes
// whatever remains. Anything that fails to flush stays in the mirror for recovery.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.loop.Wait()
	c.sweeps.Wait()

	return c.FlushAll(ctx)
}

// removeWhere drops matching records from the buffer and returns them.
func (c *Cache) removeWhere(match func(*CachedMessage) bool) []*CachedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []*CachedMessage

	c.buffer = slices.DeleteFunc(c.buffer, func(m *CachedMessage) bool {
		if !match(m) {
			return false
		}

		removed = append(removed, m.clone())
		delete(c.index, m.ID)

		if _, ok := c.inflight[m.ID]; ok {
			c.tombstones = append(c.tombstones, uint64(m.ID))
		}

		return true
	})

	bufferedMessages.Set(float64(len(c.buffer)))

	return removed
}

// sweep deletes mirror keys matching pattern without blocking the caller.
func (c *Cache) sweep(ctx context.Context, pattern string) {
	ctx = context.WithoutCancel(ctx)

	c.sweeps.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, c.opts.SweepTimeout)
		defer cancel()

		deleted, err := c.mirror.DeleteMatching(ctx, pattern)
		if err != nil {
			c.logMirrorError("sweep", err, zap.String("pattern", pattern))
			return
		}

		c.logger.Debug("Swept mirror entries",
			zap.String("pattern", pattern),
			zap.Int("deleted", deleted))
	})
}

// mirrorSave writes a record to the mirror, logging failures. The buffer may
// change while the write is in flight, so the write is repeated until the
// mirror matches the buffer: a newer revision is saved again and a record that
// was flushed or deleted meanwhile has its key removed.
func (c *Cache) mirrorSave(ctx context.Context, record *CachedMessage) {
	stale := record

	for range maxMirrorSyncs {
		if record != nil {
			if err := c.mirror.Save(ctx, record); err != nil {
				c.logMirrorError("save", err,
					zap.Uint64("messageID", uint64(record.ID)),
					zap.Uint64("guildID", uint64(record.GuildID)))
			}
			stale = record
		} else if err := c.mirror.Delete(ctx, stale); err != nil {
			c.logMirrorError("delete", err, zap.Uint64("messageID", uint64(stale.ID)))
		}

		c.mu.Lock()
		current, ok := c.index[stale.ID]
		switch {
		case ok && record != nil && current.revision == record.revision,
			!ok && record == nil:
			c.mu.Unlock()
			return
		case ok:
			record = current.clone()
		default:
			record = nil
		}
		c.mu.Unlock()
	}
}

// restoreMirror saves records that were admitted again while their keys were
// being removed from the mirror.
func (c *Cache) restoreMirror(ctx context.Context, removed []*CachedMessage) {
	var readmitted []*CachedMessage

	c.mu.Lock()
	for _, m := range removed {
		if current, ok := c.index[m.ID]; ok {
			readmitted = append(readmitted, current.clone())
		}
	}
	c.mu.Unlock()

	for _, record := range readmitted {
		c.mirrorSave(ctx, record)
	}
}

func (c *Cache) logMirrorError(action string, err error, fields ...zap.Field) {
	mirrorErrors.WithLabelValues(action).Inc()
	c.logger.Error("Mirror operation failed",
		append([]zap.Field{zap.String("action", action), zap.Error(err)}, fields...)...)
}
