// Package relay forwards audit events produced by the bot.
package relay

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// Kind names an audit event.
type Kind string

const (
	KindMessageUpdate Kind = "message_update"
	KindMessageDelete Kind = "message_delete"
	KindGuildLeave    Kind = "guild_leave"
	KindChannelDelete Kind = "channel_delete"
)

// Event is a single audit entry.
type Event struct {
	ID        string
	Kind      Kind
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	AuthorID  snowflake.ID

	// Known reports whether a retained copy of the message was found.
	Known bool
	// Count is the number of messages removed by a guild or channel event.
	Count int

	OccurredAt time.Time
}

// Relay delivers audit events to their destination.
type Relay interface {
	Send(ctx context.Context, event *Event) error
}

// LogRelay writes audit events to the structured log. Message text is never logged.
type LogRelay struct {
	logger *zap.Logger
}

// NewLogRelay creates a relay backed by the given logger.
func NewLogRelay(logger *zap.Logger) *LogRelay {
	return &LogRelay{logger: logger.Named("relay")}
}

func (r *LogRelay) Send(_ context.Context, event *Event) error {
	r.logger.Info("Audit event",
		zap.String("eventID", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.Uint64("guildID", uint64(event.GuildID)),
		zap.Uint64("channelID", uint64(event.ChannelID)),
		zap.Uint64("messageID", uint64(event.MessageID)),
		zap.Uint64("authorID", uint64(event.AuthorID)),
		zap.Bool("known", event.Known),
		zap.Int("count", event.Count),
		zap.Time("occurredAt", event.OccurredAt))

	return nil
}
