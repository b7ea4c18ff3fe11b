package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/chronicle/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateTable().
			Model((*types.Guild)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create guilds table: %w", err)
		}

		_, err = db.NewCreateTable().
			Model((*types.Message)(nil)).
			IfNotExists().
			ForeignKey("(guild_id) REFERENCES guilds (id) ON DELETE CASCADE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create messages table: %w", err)
		}

		// Lookup paths used by scoped deletion and the retention purge
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_messages_author_id ON messages (author_id)",
			"CREATE INDEX IF NOT EXISTS idx_messages_guild_id ON messages (guild_id)",
			"CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages (channel_id)",
			"CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at)",
		}

		for _, index := range indexes {
			if _, err := db.NewRaw(index).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.Message)(nil),
			(*types.Guild)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Cascade().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %T: %w", model, err)
			}
		}

		return nil
	})
}
