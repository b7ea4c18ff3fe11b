package types

import "time"

// Guild records a Discord guild that has stored messages.
type Guild struct {
	ID        uint64    `bun:",pk"                                json:"id"`        // Discord guild ID
	CreatedAt time.Time `bun:",notnull,default:current_timestamp" json:"createdAt"` // When the guild was first seen
}

// Message is a retained Discord message. Content and attachments stay encrypted or
// encoded exactly as they were buffered.
type Message struct {
	ID              uint64    `bun:",pk"                json:"id"`              // Discord message ID
	GuildID         uint64    `bun:",notnull"           json:"guildId"`         // Discord guild ID
	ChannelID       uint64    `bun:",notnull"           json:"channelId"`       // Discord channel ID
	AuthorID        uint64    `bun:",notnull"           json:"authorId"`        // Discord user ID of the author
	Content         string    `bun:",type:text,notnull" json:"content"`         // Encrypted message text
	AttachmentCount int       `bun:",notnull"           json:"attachmentCount"` // Attachments on the original message
	Attachments     []string  `bun:",array"             json:"attachments"`     // Retained attachment blobs
	CreatedAt       time.Time `bun:",notnull"           json:"createdAt"`       // Message creation time
}
