package database

import (
	"github.com/robalyx/chronicle/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	guild   *models.GuildModel
	message *models.MessageModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		guild:   models.NewGuild(db, logger),
		message: models.NewMessage(db, logger),
	}
}

// Guild returns the guild model repository.
func (r *Repository) Guild() *models.GuildModel {
	return r.guild
}

// Message returns the message model repository.
func (r *Repository) Message() *models.MessageModel {
	return r.message
}
