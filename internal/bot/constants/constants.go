package constants

import "time"

const (
	// Commands.
	ViewCommandName        = "view"
	ClearMyDataCommandName = "clearmydata"
	ForgetCommandName      = "forget"
	MessageIDOptionName    = "message-id"

	// Cooldowns.
	ViewCooldown        = 5 * time.Second
	ClearMyDataCooldown = 10 * time.Second
	ForgetCooldown      = 5 * time.Second

	// Messages older than this when they arrive are gateway replays.
	ReplayWindow = 10 * time.Second

	// Embeds.
	ViewEmbedColor    = 0x73F3A9
	SuccessEmbedColor = 0x2DFA60
	ErrorEmbedColor   = 0xFE544A
	ContentChunkSize  = 1000
	MaxContentFields  = 5

	// Responses.
	MessageNotFound       = "This message doesn't exist."
	MessageNotAvailable   = "This message is not available."
	MessageUnavailable    = "Message unavailable."
	GuildOnly             = "This command can only be used in a server."
	AdministratorOnly     = "You need the Administrator permission to use this command."
	InvalidMessageID      = "That is not a valid message ID."
	InternalError         = "Internal error. Please report this to an administrator."
	CooldownResponse      = "You have to wait %d second(s) to use this command again."
	DataClearedResponse   = "🎉 All your messages were deleted from the database (%d removed)."
	MessageForgotten      = "The message was removed from the database."
	MessageAlreadyRemoved = "The message was not retained."
)
