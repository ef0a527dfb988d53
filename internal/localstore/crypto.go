package localstore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// magic prefixes encrypted values so plaintext written before a passphrase
// was configured is still readable.
var magic = []byte("QCENC1")

// ErrDecrypt is returned when a value cannot be opened with the configured
// passphrase.
var ErrDecrypt = errors.New("localstore: decrypt failed")

// generateSalt returns 16 cryptographically random bytes.
func generateSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// deriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
}

// sealer encrypts values with AES-256-GCM. Argon2 is expensive, so the key
// for the store's own salt is derived once and keys for foreign salts are
// cached as they are seen.
type sealer struct {
	passphrase string
	salt       []byte

	mu   sync.Mutex
	keys map[string][]byte
}

func newSealer(passphrase string) (*sealer, error) {
	salt, err := generateSalt()
	if err != nil {
		return nil, err
	}
	return &sealer{
		passphrase: passphrase,
		salt:       salt,
		keys:       map[string][]byte{string(salt): deriveKey(passphrase, salt)},
	}, nil
}

func (s *sealer) key(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[string(salt)]
	if !ok {
		k = deriveKey(s.passphrase, salt)
		s.keys[string(salt)] = k
	}
	return k
}

// seal output format: [magic][16-byte salt][12-byte nonce][AES-256-GCM ciphertext]
func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(s.key(s.salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(magic)+saltSize+nonceSize+len(ciphertext))
	out = append(out, magic...)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, magic) {
		return data, nil
	}
	data = data[len(magic):]
	if len(data) < saltSize+nonceSize {
		return nil, fmt.Errorf("%w: value too small", ErrDecrypt)
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(s.key(salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}
