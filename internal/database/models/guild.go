package models

import (
	"context"
	"fmt"
	"time"

	"github.com/robalyx/chronicle/internal/database/dbretry"
	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GuildModel handles database operations for guild records.
type GuildModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuild creates a new guild model instance.
func NewGuild(db *bun.DB, logger *zap.Logger) *GuildModel {
	return &GuildModel{
		db:     db,
		logger: logger.Named("db_guild"),
	}
}

// UpsertGuilds inserts guild rows that do not exist yet. Existing rows are left untouched.
// It runs on the given handle so callers can include it in a transaction.
func (m *GuildModel) UpsertGuilds(ctx context.Context, db bun.IDB, guildIDs []uint64) error {
	if len(guildIDs) == 0 {
		return nil
	}

	now := time.Now()
	guilds := make([]*types.Guild, 0, len(guildIDs))

	for _, id := range guildIDs {
		guilds = append(guilds, &types.Guild{ID: id, CreatedAt: now})
	}

	_, err := db.NewInsert().
		Model(&guilds).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert guilds: %w", err)
	}

	m.logger.Debug("Upserted guilds", zap.Int("count", len(guilds)))

	return nil
}

// DeleteGuild removes a guild row. Its stored messages are removed by the foreign key cascade.
func (m *GuildModel) DeleteGuild(ctx context.Context, guildID uint64) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		result, err := m.db.NewDelete().
			Model((*types.Guild)(nil)).
			Where("id = ?", guildID).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to delete guild: %w", err)
		}

		affected, _ := result.RowsAffected()

		m.logger.Debug("Deleted guild",
			zap.Uint64("guildID", guildID),
			zap.Int64("affected", affected))

		return int(affected), nil
	})
}
