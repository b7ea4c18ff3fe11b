package archive_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/archive"
	"github.com/robalyx/chronicle/internal/cache"
	"github.com/robalyx/chronicle/internal/database/models"
	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errAuth = errors.New("authentication failed")

type prefixCipher struct{}

func (prefixCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (prefixCipher) Decrypt(blob string) (string, error) {
	plaintext, ok := strings.CutPrefix(blob, "enc:")
	if !ok {
		return "", errAuth
	}

	return plaintext, nil
}

// memStore keeps rows in a map and implements both the cache and archive stores.
type memStore struct {
	mu      sync.Mutex
	rows    map[uint64]*types.Message
	updates int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uint64]*types.Message)}
}

func (s *memStore) FlushMessages(_ context.Context, messages []*types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range messages {
		s.rows[m.ID] = m
	}

	return nil
}

func (s *memStore) GetMessage(_ context.Context, messageID uint64) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[messageID]
	if !ok {
		return nil, models.ErrMessageNotFound
	}

	return row, nil
}

func (s *memStore) UpdateMessageContent(_ context.Context, messageID uint64, content string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[messageID]
	if !ok {
		return false, nil
	}

	row.Content = content
	s.updates++

	return true, nil
}

func (s *memStore) deleteWhere(match func(*types.Message) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, row := range s.rows {
		if match(row) {
			delete(s.rows, id)
			deleted++
		}
	}

	return deleted
}

func (s *memStore) DeleteMessagesByIDs(_ context.Context, messageIDs []uint64) (int, error) {
	return s.deleteWhere(func(m *types.Message) bool {
		for _, id := range messageIDs {
			if m.ID == id {
				return true
			}
		}
		return false
	}), nil
}

func (s *memStore) DeleteMessagesByAuthor(_ context.Context, authorID uint64) (int, error) {
	return s.deleteWhere(func(m *types.Message) bool { return m.AuthorID == authorID }), nil
}

func (s *memStore) DeleteMessagesByChannel(_ context.Context, channelID uint64) (int, error) {
	return s.deleteWhere(func(m *types.Message) bool { return m.ChannelID == channelID }), nil
}

func (s *memStore) DeleteGuild(_ context.Context, guildID uint64) (int, error) {
	deleted := s.deleteWhere(func(m *types.Message) bool { return m.GuildID == guildID })
	return min(deleted, 1), nil
}

type nopMirror struct{}

func (nopMirror) Save(context.Context, *cache.CachedMessage) error { return nil }
func (nopMirror) Delete(context.Context, ...*cache.CachedMessage) error { return nil }
func (nopMirror) DeleteMatching(context.Context, string) (int, error) { return 0, nil }
func (nopMirror) LoadAll(context.Context) ([]*cache.CachedMessage, error) { return nil, nil }

type nopFetcher struct{}

func (nopFetcher) Fetch(context.Context, string) ([]byte, error) { return nil, nil }

func setupArchive(t *testing.T) (*archive.Archive, *cache.Cache, *memStore) {
	t.Helper()

	store := newMemStore()
	logger := zaptest.NewLogger(t)
	c := cache.New(prefixCipher{}, store, nopMirror{}, nopFetcher{}, cache.DefaultOptions(), logger)

	return archive.New(c, store, prefixCipher{}, logger), c, store
}

func message(id, guildID, channelID, authorID uint64, content string) *cache.Message {
	return &cache.Message{
		ID:        snowflake.ID(id),
		GuildID:   snowflake.ID(guildID),
		ChannelID: snowflake.ID(channelID),
		AuthorID:  snowflake.ID(authorID),
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func storedRow(id, guildID, channelID, authorID uint64, content string) *types.Message {
	return &types.Message{
		ID:        id,
		GuildID:   guildID,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	a, _, store := setupArchive(t)
	ctx := t.Context()

	require.NoError(t, a.Record(ctx, message(1, 10, 20, 30, "buffered")))
	store.rows[2] = storedRow(2, 10, 20, 30, "enc:stored")
	store.rows[3] = storedRow(3, 10, 20, 30, "garbage")

	got, err := a.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "buffered", got.Content)

	got, err = a.Lookup(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.Content)
	assert.Equal(t, snowflake.ID(10), got.GuildID)

	_, err = a.Lookup(ctx, 3)
	require.ErrorIs(t, err, archive.ErrUnavailable)

	_, err = a.Lookup(ctx, 4)
	require.ErrorIs(t, err, archive.ErrNotFound)
}

func TestEdit(t *testing.T) {
	t.Parallel()

	t.Run("buffered message", func(t *testing.T) {
		t.Parallel()

		a, c, _ := setupArchive(t)
		ctx := t.Context()
		require.NoError(t, a.Record(ctx, message(1, 10, 20, 30, "before")))

		previous, err := a.Edit(ctx, message(1, 10, 20, 30, "after"))
		require.NoError(t, err)
		require.NotNil(t, previous)
		assert.Equal(t, "before", previous.Content)

		got, err := c.GetCacheMessage(1)
		require.NoError(t, err)
		assert.Equal(t, "after", got.Content)
	})

	t.Run("stored message", func(t *testing.T) {
		t.Parallel()

		a, c, store := setupArchive(t)
		ctx := t.Context()
		store.rows[1] = storedRow(1, 10, 20, 30, "enc:before")

		previous, err := a.Edit(ctx, message(1, 10, 20, 30, ""))
		require.NoError(t, err)
		require.NotNil(t, previous)
		assert.Equal(t, "before", previous.Content)
		assert.Equal(t, "enc:"+cache.EmptyContent, store.rows[1].Content)
		assert.Zero(t, c.Len())
	})

	t.Run("unchanged text is not rewritten", func(t *testing.T) {
		t.Parallel()

		a, c, store := setupArchive(t)
		ctx := t.Context()
		store.rows[1] = storedRow(1, 10, 20, 30, "enc:"+cache.EmptyContent)
		require.NoError(t, a.Record(ctx, message(2, 10, 20, 30, "same")))
		before, err := c.GetCacheMessage(2)
		require.NoError(t, err)

		previous, err := a.Edit(ctx, message(1, 10, 20, 30, ""))
		require.NoError(t, err)
		require.NotNil(t, previous)
		assert.Equal(t, "enc:"+cache.EmptyContent, store.rows[1].Content)
		assert.Zero(t, store.updates)

		previous, err = a.Edit(ctx, message(2, 10, 20, 30, "same"))
		require.NoError(t, err)
		assert.Equal(t, before, previous)
	})

	t.Run("unknown message is admitted", func(t *testing.T) {
		t.Parallel()

		a, c, _ := setupArchive(t)
		ctx := t.Context()

		previous, err := a.Edit(ctx, message(1, 10, 20, 30, "new"))
		require.NoError(t, err)
		assert.Nil(t, previous)

		got, err := c.GetCacheMessage(1)
		require.NoError(t, err)
		assert.Equal(t, "new", got.Content)
	})
}

func TestForget(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) (*archive.Archive, *cache.Cache, *memStore) {
		t.Helper()

		a, c, store := setupArchive(t)
		require.NoError(t, a.Record(t.Context(), message(1, 10, 20, 30, "a")))
		require.NoError(t, a.Record(t.Context(), message(2, 11, 21, 31, "b")))
		store.rows[3] = storedRow(3, 10, 20, 30, "enc:c")
		store.rows[4] = storedRow(4, 11, 22, 31, "enc:d")

		return a, c, store
	}

	t.Run("single message", func(t *testing.T) {
		t.Parallel()

		a, c, store := seed(t)
		ctx := t.Context()

		ok, err := a.Forget(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.Forget(ctx, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.Forget(ctx, 99)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, 1, c.Len())
		assert.Len(t, store.rows, 1)
	})

	t.Run("author", func(t *testing.T) {
		t.Parallel()

		a, c, store := seed(t)

		removed, err := a.ForgetAuthor(t.Context(), 30)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = a.Lookup(t.Context(), 1)
		require.ErrorIs(t, err, archive.ErrNotFound)
		assert.Equal(t, 1, c.Len())
		assert.Len(t, store.rows, 1)
	})

	t.Run("guild", func(t *testing.T) {
		t.Parallel()

		a, c, store := seed(t)

		removed, err := a.ForgetGuild(t.Context(), 11)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, c.Len())
		assert.NotContains(t, store.rows, uint64(4))
	})

	t.Run("channel", func(t *testing.T) {
		t.Parallel()

		a, c, store := seed(t)

		removed, err := a.ForgetChannel(t.Context(), 20)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		assert.Equal(t, 1, c.Len())
		assert.NotContains(t, store.rows, uint64(3))
	})
}
