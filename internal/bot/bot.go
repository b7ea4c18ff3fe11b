package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	discordcache "github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/bot/constants"
	"github.com/robalyx/chronicle/internal/cache"
	"github.com/robalyx/chronicle/internal/relay"
	"github.com/robalyx/chronicle/pkg/utils"
	"go.uber.org/zap"
)

// admissionTimeout bounds a message admission including attachment downloads.
const admissionTimeout = 30 * time.Second

// Archive is the message retention surface used by event and command handlers.
type Archive interface {
	Record(ctx context.Context, msg *cache.Message) error
	Lookup(ctx context.Context, id snowflake.ID) (*cache.DecryptedMessage, error)
	Edit(ctx context.Context, msg *cache.Message) (*cache.DecryptedMessage, error)
	Forget(ctx context.Context, id snowflake.ID) (bool, error)
	ForgetAuthor(ctx context.Context, authorID snowflake.ID) (int, error)
	ForgetGuild(ctx context.Context, guildID snowflake.ID) (int, error)
	ForgetChannel(ctx context.Context, channelID snowflake.ID) (int, error)
}

// Bot connects the Discord gateway to the message archive.
type Bot struct {
	client         bot.Client
	archive        Archive
	relay          relay.Relay
	cooldowns      map[string]*utils.TTLMap[snowflake.ID, struct{}]
	requestTimeout time.Duration
	logger         *zap.Logger
}

// New creates the bot and configures the Discord client with the intents
// needed to read guild messages.
func New(token string, archive Archive, r relay.Relay, requestTimeout time.Duration, logger *zap.Logger) (*Bot, error) {
	b := newBot(archive, r, requestTimeout, logger)

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
			),
		),
		bot.WithCacheConfigOpts(
			discordcache.WithCaches(discordcache.FlagGuilds),
		),
		bot.WithEventManagerConfigOpts(
			bot.WithAsyncEventsEnabled(),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnGuildMessageCreate:            b.onMessageCreate,
			OnGuildMessageUpdate:            b.onMessageUpdate,
			OnGuildMessageDelete:            b.onMessageDelete,
			OnGuildLeave:                    b.onGuildLeave,
			OnGuildChannelDelete:            b.onChannelDelete,
			OnApplicationCommandInteraction: b.onCommand,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client

	return b, nil
}

func newBot(archive Archive, r relay.Relay, requestTimeout time.Duration, logger *zap.Logger) *Bot {
	return &Bot{
		archive: archive,
		relay:   r,
		cooldowns: map[string]*utils.TTLMap[snowflake.ID, struct{}]{
			constants.ViewCommandName:        utils.NewTTLMap[snowflake.ID, struct{}](constants.ViewCooldown),
			constants.ClearMyDataCommandName: utils.NewTTLMap[snowflake.ID, struct{}](constants.ClearMyDataCooldown),
			constants.ForgetCommandName:      utils.NewTTLMap[snowflake.ID, struct{}](constants.ForgetCooldown),
		},
		requestTimeout: requestTimeout,
		logger:         logger.Named("bot"),
	}
}

// Start registers the slash commands and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Registering commands")

	_, err := b.client.Rest().SetGlobalCommands(b.client.ApplicationID(), commandDefinitions())
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.logger.Info("Starting bot")

	return b.client.OpenGateway(ctx)
}

// Close shuts down the gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
}

func commandDefinitions() []discord.ApplicationCommandCreate {
	messageID := discord.ApplicationCommandOptionString{
		Name:        constants.MessageIDOptionName,
		Description: "The message ID",
		Required:    true,
	}

	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        constants.ViewCommandName,
			Description: "Displays a message stored in the database",
			Options:     []discord.ApplicationCommandOption{messageID},
		},
		discord.SlashCommandCreate{
			Name:        constants.ClearMyDataCommandName,
			Description: "Immediately deletes your messages from the database",
		},
		discord.SlashCommandCreate{
			Name:        constants.ForgetCommandName,
			Description: "Removes a single message from the database",
			Options:     []discord.ApplicationCommandOption{messageID},
		},
	}
}

// guard runs a handler with a timeout and recovers from panics.
func (b *Bot) guard(name string, timeout time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in event handler",
				zap.String("handler", name),
				zap.Any("panic", r))
		}

		b.logger.Debug("Event handled",
			zap.String("handler", name),
			zap.Duration("duration", time.Since(start)))
	}()

	fn(ctx)
}
