package cache

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/chronicle/internal/database/types"
)

// Attachment is a file attached to an inbound message.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	URL         string
}

// Message is an inbound guild message with the fields the cache reads.
type Message struct {
	ID          snowflake.ID
	GuildID     snowflake.ID // zero for direct messages
	ChannelID   snowflake.ID
	AuthorID    snowflake.ID
	WebhookID   snowflake.ID // non-zero when posted through a webhook
	Content     string
	Attachments []Attachment
	CreatedAt   time.Time
}

// CachedMessage is a buffered record. Content holds the encrypted text.
type CachedMessage struct {
	ID              snowflake.ID `json:"id"`
	GuildID         snowflake.ID `json:"guildId"`
	ChannelID       snowflake.ID `json:"channelId"`
	AuthorID        snowflake.ID `json:"authorId"`
	Content         string       `json:"content"`
	AttachmentCount int          `json:"attachmentCount"`
	Attachments     []string     `json:"attachments"`
	CreatedAt       time.Time    `json:"createdAt"`

	// revision is unique per write so a flush can tell whether the
	// record it wrote is still the current one.
	revision uint64
}

// DecryptedMessage is a plaintext copy of a retained message.
type DecryptedMessage struct {
	ID              snowflake.ID
	GuildID         snowflake.ID
	ChannelID       snowflake.ID
	AuthorID        snowflake.ID
	Content         string
	AttachmentCount int
	Attachments     []string
	CreatedAt       time.Time
}

// clone returns a copy safe to use outside the buffer lock.
func (m *CachedMessage) clone() *CachedMessage {
	c := *m
	c.Attachments = append([]string(nil), m.Attachments...)

	return &c
}

// row converts the record to its relational form.
func (m *CachedMessage) row() *types.Message {
	return &types.Message{
		ID:              uint64(m.ID),
		GuildID:         uint64(m.GuildID),
		ChannelID:       uint64(m.ChannelID),
		AuthorID:        uint64(m.AuthorID),
		Content:         m.Content,
		AttachmentCount: m.AttachmentCount,
		Attachments:     append([]string(nil), m.Attachments...),
		CreatedAt:       m.CreatedAt,
	}
}

// FromRow converts a stored message back to the buffered form.
func FromRow(row *types.Message) *CachedMessage {
	return &CachedMessage{
		ID:              snowflake.ID(row.ID),
		GuildID:         snowflake.ID(row.GuildID),
		ChannelID:       snowflake.ID(row.ChannelID),
		AuthorID:        snowflake.ID(row.AuthorID),
		Content:         row.Content,
		AttachmentCount: row.AttachmentCount,
		Attachments:     append([]string(nil), row.Attachments...),
		CreatedAt:       row.CreatedAt,
	}
}

// Decrypt returns a plaintext copy using the given cipher.
func (m *CachedMessage) Decrypt(cipher Cipher) (*DecryptedMessage, error) {
	content, err := cipher.Decrypt(m.Content)
	if err != nil {
		return nil, err
	}

	return &DecryptedMessage{
		ID:              m.ID,
		GuildID:         m.GuildID,
		ChannelID:       m.ChannelID,
		AuthorID:        m.AuthorID,
		Content:         content,
		AttachmentCount: m.AttachmentCount,
		Attachments:     append([]string(nil), m.Attachments...),
		CreatedAt:       m.CreatedAt,
	}, nil
}

// SameContent reports whether stored text, as admitted by the cache, matches content.
func SameContent(stored, content string) bool {
	if content == "" {
		content = EmptyContent
	}

	return stored == content
}
