package cipher

import (
	"bytes"
	"context"
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	// IVSize is the length of the IV prefix on every sealed blob.
	IVSize  = aes.BlockSize
	tagSize = sha256.Size

	encInfo = "mediavault/aes-256-cbc"
	macInfo = "mediavault/hmac-sha256"
)

// Option customizes a Service.
type Option func(*Service)

// WithDeviceID overrides the host identity mixed into key derivation.
func WithDeviceID(id string) Option {
	return func(s *Service) { s.deviceID = id }
}

// Service seals and opens byte blobs with the device key. The layout of a
// sealed blob is IV(16) || AES-256-CBC(PKCS7(plaintext || HMAC-SHA256(IV || plaintext))).
// It is safe for concurrent use.
type Service struct {
	store    KeyStore
	deviceID string

	mu   sync.Mutex
	keys *workingKeys
}

type workingKeys struct {
	block  stdcipher.Block
	macKey []byte
}

// New builds a Service. The key is not touched until the first Encrypt or Decrypt.
func New(store KeyStore, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.deviceID == "" {
		s.deviceID = DeviceID()
	}
	return s
}

func (s *Service) load(ctx context.Context) (*workingKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys != nil {
		return s.keys, nil
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: no key store configured", ErrKeyUnavailable)
	}
	master, err := s.store.LoadOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	salt := sha256.Sum256([]byte(s.deviceID))
	encKey, err := derive(master, salt[:], encInfo)
	if err != nil {
		return nil, err
	}
	macKey, err := derive(master, salt[:], macInfo)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	s.keys = &workingKeys{block: block, macKey: macKey}
	return s.keys, nil
}

func derive(master, salt []byte, info string) ([]byte, error) {
	out := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrKeyUnavailable, err)
	}
	return out, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (s *Service) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	keys, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: generate iv: %v", ErrCipherFailure, err)
	}

	payload := make([]byte, 0, len(plaintext)+tagSize+aes.BlockSize)
	payload = append(payload, plaintext...)
	payload = append(payload, authTag(keys.macKey, iv, plaintext)...)
	payload = pkcs7Pad(payload, aes.BlockSize)

	sealed := make([]byte, IVSize+len(payload))
	copy(sealed, iv)
	stdcipher.NewCBCEncrypter(keys.block, iv).CryptBlocks(sealed[IVSize:], payload)
	return sealed, nil
}

// Decrypt opens a sealed blob. It never returns partial or unauthenticated plaintext.
func (s *Service) Decrypt(ctx context.Context, blob []byte) ([]byte, error) {
	if len(blob) < IVSize+1 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedBlob, len(blob))
	}
	keys, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	iv := blob[:IVSize]
	ciphertext := blob[IVSize:]
	if len(ciphertext)%aes.BlockSize != 0 || len(ciphertext) < tagSize+1 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrCipherFailure, len(ciphertext))
	}

	payload := make([]byte, len(ciphertext))
	stdcipher.NewCBCDecrypter(keys.block, iv).CryptBlocks(payload, ciphertext)

	payload, ok := pkcs7Unpad(payload, aes.BlockSize)
	if !ok || len(payload) < tagSize {
		return nil, fmt.Errorf("%w: integrity check failed", ErrCipherFailure)
	}
	plaintext := payload[:len(payload)-tagSize]
	tag := payload[len(payload)-tagSize:]
	if !hmac.Equal(tag, authTag(keys.macKey, iv, plaintext)) {
		return nil, fmt.Errorf("%w: integrity check failed", ErrCipherFailure)
	}
	return plaintext, nil
}

func authTag(key, iv, plaintext []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(iv)
	mac.Write(plaintext)
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
