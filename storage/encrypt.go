package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/grafeo-db/grafeo/gerrors"
)

// pbkdf2Iterations and saltSize mirror the teacher's key-derivation
// settings (pkg/encryption/encryption.go's KeyDerivationConfig), adapted
// from AES-256-GCM to chacha20poly1305 per SPEC_FULL's domain-stack wiring.
const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
	keySize          = chacha20poly1305.KeySize
	versionHeaderSize = 4
)

// Cipher encrypts and decrypts byte payloads for storage at rest. Neither
// CheckpointCoordinator nor WAL uses it, and nothing builds one from
// config.Options.EncryptionKey. A zero-value Cipher has no AEAD, so
// Encrypt and Decrypt on it panic; build one with NewCipher.
type Cipher struct {
	aead    interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
	keyID uint32
}

// NewCipher derives a chacha20poly1305 key from passphrase and salt via
// PBKDF2-HMAC-SHA256, the same derivation the teacher's encryption package
// uses before AEAD-sealing payloads (pbkdf2.Key(...), 32-byte key).
func NewCipher(passphrase string, salt []byte, keyID uint32) (*Cipher, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "init aead cipher", err)
	}
	return &Cipher{aead: aead, keyID: keyID}, nil
}

// NewSalt generates a fresh random salt of the size NewCipher expects.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "generate salt", err)
	}
	return salt, nil
}

// Encrypt seals plaintext, prefixing the result with a 4-byte key-version
// header (mirroring the teacher's versioned-key scheme so a future key
// rotation can recognize which key encrypted a given blob) and the AEAD
// nonce.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, gerrors.Wrap(gerrors.KindIO, "generate nonce", err)
	}

	out := make([]byte, versionHeaderSize+len(nonce))
	binary.LittleEndian.PutUint32(out[:versionHeaderSize], c.keyID)
	copy(out[versionHeaderSize:], nonce)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt, verifying keyID matches.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(data) < versionHeaderSize+nonceSize {
		return nil, gerrors.Corruption.WithHint("encrypted payload too short")
	}
	keyID := binary.LittleEndian.Uint32(data[:versionHeaderSize])
	if keyID != c.keyID {
		return nil, gerrors.New(gerrors.KindUnsupported, "encrypted with a different key version")
	}
	nonce := data[versionHeaderSize : versionHeaderSize+nonceSize]
	ciphertext := data[versionHeaderSize+nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindCorruption, "decrypt payload", err)
	}
	return plaintext, nil
}
