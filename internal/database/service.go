package database

import (
	"github.com/robalyx/chronicle/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	message *service.MessageService
}

// NewService creates a new service instance with all services.
func NewService(db *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		message: service.NewMessage(db, repository.Guild(), repository.Message(), logger),
	}
}

// Message returns the message service.
func (s *Service) Message() *service.MessageService {
	return s.message
}
