package encryption_test

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/robalyx/chronicle/internal/encryption"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T, key string) *encryption.Codec {
	t.Helper()

	codec, err := encryption.NewCodec(key)
	require.NoError(t, err)

	return codec
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, "test-master-key-0123456789")

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "ascii", plaintext: "hello world"},
		{name: "unicode", plaintext: "héllo 👋 世界"},
		{name: "long", plaintext: strings.Repeat("a", 4000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blob, err := codec.Encrypt(tt.plaintext)
			require.NoError(t, err)

			raw, err := base64.StdEncoding.DecodeString(blob)
			require.NoError(t, err)
			assert.Len(t, raw, 64+16+16+len(tt.plaintext))

			got, err := codec.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestCodecFreshSaltAndIV(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, "test-master-key-0123456789")

	first, err := codec.Encrypt("same input")
	require.NoError(t, err)

	second, err := codec.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	rawFirst, _ := base64.StdEncoding.DecodeString(first)
	rawSecond, _ := base64.StdEncoding.DecodeString(second)
	assert.NotEqual(t, rawFirst[:64], rawSecond[:64], "salt must differ")
	assert.NotEqual(t, rawFirst[64:80], rawSecond[64:80], "iv must differ")
}

func TestCodecDecryptFailures(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, "test-master-key-0123456789")

	blob, err := codec.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	tampered := append([]byte(nil), raw...)
	tampered[len(tampered)-1] ^= 0xff

	tests := []struct {
		name  string
		codec *encryption.Codec
		blob  string
	}{
		{name: "not base64", codec: codec, blob: "%%%"},
		{name: "too short", codec: codec, blob: base64.StdEncoding.EncodeToString(raw[:40])},
		{name: "tampered ciphertext", codec: codec, blob: base64.StdEncoding.EncodeToString(tampered)},
		{name: "wrong key", codec: newCodec(t, "another-master-key-987654"), blob: blob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.codec.Decrypt(tt.blob)
			require.ErrorIs(t, err, encryption.ErrAuthentication)
		})
	}
}

func TestNewCodecRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := encryption.NewCodec("")
	require.ErrorIs(t, err, encryption.ErrEmptyMasterKey)
}

func TestGenerateMasterKey(t *testing.T) {
	t.Parallel()

	key, err := encryption.GenerateMasterKey(32)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := encryption.GenerateMasterKey(32)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
