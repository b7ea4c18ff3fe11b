package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// MessageKeyPrefix prefixes every mirrored message key.
	MessageKeyPrefix = "message"

	scanCount     = 500
	loadChunkSize = 200
	sweepWorkers  = 4
)

// MessageKey returns the mirror key of a message. The key carries the guild,
// channel and author so scoped deletions can match it with a pattern.
func MessageKey(m *CachedMessage) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s", MessageKeyPrefix, m.ID, m.GuildID, m.ChannelID, m.AuthorID)
}

// GuildPattern matches the mirror keys of a guild.
func GuildPattern(guildID snowflake.ID) string {
	return fmt.Sprintf("%s:*:%s:*:*", MessageKeyPrefix, guildID)
}

// ChannelPattern matches the mirror keys of a channel.
func ChannelPattern(channelID snowflake.ID) string {
	return fmt.Sprintf("%s:*:*:%s:*", MessageKeyPrefix, channelID)
}

// AuthorPattern matches the mirror keys of an author.
func AuthorPattern(authorID snowflake.ID) string {
	return fmt.Sprintf("%s:*:*:*:%s", MessageKeyPrefix, authorID)
}

// RedisMirror stores one key per buffered message.
type RedisMirror struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewRedisMirror creates a mirror on the given client.
func NewRedisMirror(client rueidis.Client, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{
		client: client,
		logger: logger.Named("message_mirror"),
	}
}

// Save writes the message under its key, replacing any previous value.
func (r *RedisMirror) Save(ctx context.Context, message *CachedMessage) error {
	data, err := sonic.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = r.client.Do(ctx, r.client.B().Set().Key(MessageKey(message)).Value(rueidis.BinaryString(data)).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// Delete removes the keys of the given messages.
func (r *RedisMirror) Delete(ctx context.Context, messages ...*CachedMessage) error {
	if len(messages) == 0 {
		return nil
	}

	keys := make([]string, len(messages))
	for i, m := range messages {
		keys[i] = MessageKey(m)
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	return nil
}

// DeleteMatching removes every key matching pattern and returns how many were deleted.
// The keyspace is walked with SCAN so the server is never blocked.
func (r *RedisMirror) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	var (
		p       = pool.New().WithContext(ctx).WithMaxGoroutines(sweepWorkers)
		deleted atomic.Int64
	)

	err := r.scan(ctx, pattern, func(keys []string) {
		p.Go(func(ctx context.Context) error {
			n, err := r.client.Do(ctx, r.client.B().Del().Key(keys...).Build()).AsInt64()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}

			deleted.Add(n)

			return nil
		})
	})

	if waitErr := p.Wait(); waitErr != nil && err == nil {
		err = waitErr
	}

	return int(deleted.Load()), err
}

// LoadAll returns every mirrored message. Entries that cannot be decoded are
// logged and skipped.
func (r *RedisMirror) LoadAll(ctx context.Context) ([]*CachedMessage, error) {
	var keys []string

	err := r.scan(ctx, MessageKeyPrefix+":*", func(page []string) {
		keys = append(keys, page...)
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*CachedMessage, 0, len(keys))

	for start := 0; start < len(keys); start += loadChunkSize {
		chunk := keys[start:min(start+loadChunkSize, len(keys))]

		cmds := make(rueidis.Commands, len(chunk))
		for i, key := range chunk {
			cmds[i] = r.client.B().Get().Key(key).Build()
		}

		for i, resp := range r.client.DoMulti(ctx, cmds...) {
			data, err := resp.AsBytes()
			if err != nil {
				if rueidis.IsRedisNil(err) {
					continue
				}

				return nil, fmt.Errorf("failed to load message: %w", err)
			}

			var message CachedMessage
			if err := sonic.Unmarshal(data, &message); err != nil {
				r.logger.Error("Skipping undecodable mirror entry",
					zap.Error(err),
					zap.String("key", chunk[i]))

				continue
			}

			messages = append(messages, &message)
		}
	}

	return messages, nil
}

// scan walks keys matching pattern and hands each non-empty page to fn.
func (r *RedisMirror) scan(ctx context.Context, pattern string, fn func(keys []string)) error {
	var cursor uint64

	for {
		entry, err := r.client.Do(ctx, r.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanCount).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("failed to scan %q: %w", pattern, err)
		}

		if len(entry.Elements) > 0 {
			fn(entry.Elements)
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
