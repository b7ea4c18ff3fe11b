package cache_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/robalyx/chronicle/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mb = 1_000_000

func withAttachments(msg *cache.Message, sizes ...int) *cache.Message {
	for i, size := range sizes {
		msg.Attachments = append(msg.Attachments, cache.Attachment{
			Filename:    "file" + strconv.Itoa(i) + ".png",
			ContentType: "image/png",
			Size:        size,
			URL:         "https://cdn.example/" + strconv.Itoa(i),
		})
	}

	return msg
}

func TestAttachmentBudget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sizes    []int
		retained []string
	}{
		{
			name:     "every file over the per-file cap",
			sizes:    []int{4 * mb, 4 * mb, 4 * mb},
			retained: nil,
		},
		{
			name:     "five files filling the budget exactly",
			sizes:    []int{2 * mb, 2 * mb, 2 * mb, 2 * mb, 2 * mb},
			retained: []string{"file0.png", "file1.png", "file2.png", "file3.png", "file4.png"},
		},
		{
			name:     "first fit in original order",
			sizes:    []int{2 * mb, 3 * mb, 3 * mb, 3 * mb, 1 * mb},
			retained: []string{"file0.png", "file1.png", "file2.png", "file4.png"},
		},
		{
			name:     "empty attachments are skipped",
			sizes:    []int{0, 1 * mb},
			retained: []string{"file1.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tc := newTestCache(t, cache.DefaultOptions())
			msg := withAttachments(newMessage(1, 10, 20, 30, "files"), tt.sizes...)
			require.NoError(t, tc.CacheMessage(t.Context(), msg))

			got, err := tc.GetCacheMessage(1)
			require.NoError(t, err)
			assert.Equal(t, len(tt.sizes), got.AttachmentCount)

			names := make([]string, 0, len(got.Attachments))
			for _, blob := range got.Attachments {
				stored, err := cache.ParseAttachment(blob)
				require.NoError(t, err)
				names = append(names, stored.Name)
			}

			if tt.retained == nil {
				assert.Empty(t, names)
				assert.Empty(t, tc.fetcher.calls)
			} else {
				assert.Equal(t, tt.retained, names)
			}
		})
	}
}

func TestAttachmentFetchFailure(t *testing.T) {
	t.Parallel()

	tc := newTestCache(t, cache.DefaultOptions())
	msg := withAttachments(newMessage(1, 10, 20, 30, "files"), 6*mb/2, 3*mb, 3*mb, 3*mb)
	tc.fetcher.fail["https://cdn.example/0"] = errors.New("cdn error")

	require.NoError(t, tc.CacheMessage(t.Context(), msg))

	got, err := tc.GetCacheMessage(1)
	require.NoError(t, err)
	assert.Equal(t, 4, got.AttachmentCount)

	// A failed download does not use up the budget
	assert.Len(t, got.Attachments, 3)
	assert.Len(t, tc.fetcher.calls, 4)
}

func TestEncodeAttachment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		want        string
		wantName    string
		wantType    string
		wantExt     string
	}{
		{
			name:        "declared type",
			filename:    "photo.jpeg",
			contentType: "image/jpeg",
			data:        []byte("hi"),
			want:        "photo.jpeg;data:image/jpeg|jpeg;base64,aGk=",
			wantName:    "photo.jpeg",
			wantType:    "image/jpeg",
			wantExt:     "jpeg",
		},
		{
			name:     "defaults",
			filename: "notes",
			data:     []byte("hi"),
			want:     "notes;data:text/plain; charset=utf-8|txt;base64,aGk=",
			wantName: "notes",
			wantType: cache.DefaultContentType,
			wantExt:  cache.DefaultExtension,
		},
		{
			name:        "separators stripped from name",
			filename:    "evil;data:x;base64,.bin",
			contentType: "application/octet-stream",
			data:        []byte{0, 1, 2},
			want:        "evilx.bin;data:application/octet-stream|bin;base64,AAEC",
			wantName:    "evilx.bin",
			wantType:    "application/octet-stream",
			wantExt:     "bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blob := cache.EncodeAttachment(tt.filename, tt.contentType, tt.data)
			assert.Equal(t, tt.want, blob)

			stored, err := cache.ParseAttachment(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, stored.Name)
			assert.Equal(t, tt.wantType, stored.ContentType)
			assert.Equal(t, tt.wantExt, stored.Extension)
			assert.Equal(t, tt.data, stored.Data)
		})
	}
}

func TestParseAttachmentMalformed(t *testing.T) {
	t.Parallel()

	for _, blob := range []string{
		"",
		"name-only",
		"name;data:text/plain|txt",
		"name;data:text/plain;base64,aGk=",
		"name;data:text/plain|txt;base64,!!!",
	} {
		_, err := cache.ParseAttachment(blob)
		require.ErrorIs(t, err, cache.ErrMalformedAttachment, blob)
	}
}
