package database_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/robalyx/chronicle/internal/database"
	"github.com/robalyx/chronicle/internal/database/models"
	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/robalyx/chronicle/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

// setupDatabase starts a disposable postgres container and returns a migrated client.
func setupDatabase(t *testing.T) database.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("chronicle"),
		postgres.WithUsername("chronicle"),
		postgres.WithPassword("chronicle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	client, err := database.NewConnection(ctx, &config.PostgreSQL{
		Host:         host,
		Port:         port,
		User:         "chronicle",
		Password:     "chronicle",
		DBName:       "chronicle",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}, zaptest.NewLogger(t), true)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func testMessage(id, guildID, channelID, authorID uint64, createdAt time.Time) *types.Message {
	return &types.Message{
		ID:              id,
		GuildID:         guildID,
		ChannelID:       channelID,
		AuthorID:        authorID,
		Content:         "encrypted-" + strconv.FormatUint(id, 10),
		AttachmentCount: 1,
		Attachments:     []string{"a.txt;data:text/plain|txt;base64,aGk="},
		CreatedAt:       createdAt,
	}
}

func TestMessageServiceIntegration(t *testing.T) {
	client := setupDatabase(t)
	ctx := t.Context()
	messages := client.Service().Message()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("flush stores guilds and messages", func(t *testing.T) {
		err := messages.FlushMessages(ctx, []*types.Message{
			testMessage(1, 100, 10, 1000, now),
			testMessage(2, 100, 11, 1001, now),
			testMessage(3, 200, 20, 1000, now.Add(-10*24*time.Hour)),
		})
		require.NoError(t, err)

		stored, err := messages.GetMessage(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), stored.GuildID)
		assert.Equal(t, "encrypted-1", stored.Content)
		assert.Equal(t, []string{"a.txt;data:text/plain|txt;base64,aGk="}, stored.Attachments)
	})

	t.Run("flush is an upsert", func(t *testing.T) {
		updated := testMessage(1, 100, 10, 1000, now)
		updated.Content = "encrypted-new"

		require.NoError(t, messages.FlushMessages(ctx, []*types.Message{updated}))

		stored, err := messages.GetMessage(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "encrypted-new", stored.Content)
	})

	t.Run("update content", func(t *testing.T) {
		ok, err := messages.UpdateMessageContent(ctx, 2, "edited")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = messages.UpdateMessageContent(ctx, 999, "edited")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing message", func(t *testing.T) {
		_, err := messages.GetMessage(ctx, 999)
		require.ErrorIs(t, err, models.ErrMessageNotFound)
	})

	t.Run("purge expired", func(t *testing.T) {
		affected, err := messages.PurgeExpired(ctx, 7*24*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, affected)

		_, err = messages.GetMessage(ctx, 3)
		require.ErrorIs(t, err, models.ErrMessageNotFound)
	})

	t.Run("delete by author", func(t *testing.T) {
		affected, err := messages.DeleteMessagesByAuthor(ctx, 1000)
		require.NoError(t, err)
		assert.Equal(t, 1, affected)
	})

	t.Run("delete guild cascades", func(t *testing.T) {
		_, err := messages.DeleteGuild(ctx, 100)
		require.NoError(t, err)

		_, err = messages.GetMessage(ctx, 2)
		require.ErrorIs(t, err, models.ErrMessageNotFound)
	})
}
