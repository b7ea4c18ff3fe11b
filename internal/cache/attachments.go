package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/robalyx/chronicle/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultContentType = "text/plain; charset=utf-8"
	DefaultExtension   = "txt"
)

// ErrMalformedAttachment is returned when a stored attachment blob cannot be parsed.
var ErrMalformedAttachment = errors.New("malformed attachment blob")

// StoredAttachment is a decoded attachment blob.
type StoredAttachment struct {
	Name        string
	ContentType string
	Extension   string
	Data        []byte
}

// encodeAttachments fetches and encodes the attachments that fit the size limits.
// Selection is first-fit in the original order: an attachment is skipped when it is
// empty, larger than MaxFileSize, or would push the total past MaxAttachmentsSize.
// Only successfully fetched attachments count toward the total.
func (c *Cache) encodeAttachments(ctx context.Context, msg *Message) []string {
	blobs := make([]string, 0, len(msg.Attachments))
	total := 0

	for _, attachment := range msg.Attachments {
		switch {
		case attachment.Size <= 0:
			skippedAttachments.WithLabelValues("empty").Inc()
			continue
		case attachment.Size > c.opts.MaxFileSize:
			skippedAttachments.WithLabelValues("file_size").Inc()
			continue
		case total+attachment.Size > c.opts.MaxAttachmentsSize:
			skippedAttachments.WithLabelValues("total_size").Inc()
			continue
		}

		data, err := c.fetcher.Fetch(ctx, attachment.URL)
		if err != nil {
			skippedAttachments.WithLabelValues("fetch").Inc()
			c.logger.Error("Failed to fetch attachment",
				zap.Error(err),
				zap.Uint64("messageID", uint64(msg.ID)),
				zap.String("filename", attachment.Filename))

			continue
		}

		blobs = append(blobs, EncodeAttachment(attachment.Filename, attachment.ContentType, data))
		total += attachment.Size
	}

	return blobs
}

// EncodeAttachment builds a blob of the form name;data:<mime>|<ext>;base64,<payload>.
func EncodeAttachment(filename, contentType string, data []byte) string {
	name := strings.ReplaceAll(utils.CleanFilename(filename), ";data:", "")
	name = strings.ReplaceAll(name, ";base64,", "")

	if contentType == "" {
		contentType = DefaultContentType
	}

	extension := DefaultExtension
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		extension = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name) + len(contentType) + len(extension) + base64.StdEncoding.EncodedLen(len(data)) + 16)
	b.WriteString(name)
	b.WriteString(";data:")
	b.WriteString(contentType)
	b.WriteByte('|')
	b.WriteString(extension)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))

	return b.String()
}

// ParseAttachment decodes a blob built by EncodeAttachment.
func ParseAttachment(blob string) (*StoredAttachment, error) {
	name, rest, ok := strings.Cut(blob, ";data:")
	if !ok {
		return nil, ErrMalformedAttachment
	}

	header, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil, ErrMalformedAttachment
	}

	contentType, extension, ok := strings.Cut(header, "|")
	if !ok {
		return nil, ErrMalformedAttachment
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Join(ErrMalformedAttachment, err)
	}

	return &StoredAttachment{
		Name:        name,
		ContentType: contentType,
		Extension:   extension,
		Data:        data,
	}, nil
}
