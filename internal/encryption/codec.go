// Package encryption seals message text for storage at rest.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 64
	ivSize     = 16
	tagSize    = 16
	keySize    = 32
	iterations = 9999
	headerSize = saltSize + ivSize + tagSize
)

var (
	// ErrAuthentication is returned when a blob is malformed or fails tag verification.
	ErrAuthentication = errors.New("message authentication failed")
	// ErrEmptyMasterKey is returned when a codec is built without a key.
	ErrEmptyMasterKey = errors.New("master key is empty")
)

// Codec encrypts and decrypts message text with keys derived from a master key.
// Blobs are base64(salt || iv || tag || ciphertext); every call uses a fresh salt and IV.
type Codec struct {
	masterKey []byte
}

// NewCodec creates a codec for the given master key.
func NewCodec(masterKey string) (*Codec, error) {
	if masterKey == "" {
		return nil, ErrEmptyMasterKey
	}

	return &Codec{masterKey: []byte(masterKey)}, nil
}

// Encrypt seals plaintext. The empty string is a valid input.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	header := make([]byte, saltSize+ivSize, headerSize+len(plaintext))
	if _, err := rand.Read(header); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	salt, iv := header[:saltSize], header[saltSize:]

	gcm, err := c.newGCM(salt)
	if err != nil {
		return "", err
	}

	// Seal returns ciphertext || tag; the stored layout puts the tag first
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := append(header, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *Codec) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil || len(raw) < headerSize {
		return "", ErrAuthentication
	}

	salt := raw[:saltSize]
	iv := raw[saltSize : saltSize+ivSize]
	tag := raw[saltSize+ivSize : headerSize]
	ciphertext := raw[headerSize:]

	gcm, err := c.newGCM(salt)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}

	return string(plaintext), nil
}

func (c *Codec) newGCM(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.masterKey, salt, iterations, keySize, sha512.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	return gcm, nil
}

// GenerateMasterKey returns a random key of size bytes, base64 encoded.
func GenerateMasterKey(size int) (string, error) {
	if size <= 0 {
		size = 64
	}

	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}
