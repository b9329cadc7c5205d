package filestore

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fw-platform/wish-console/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

var _ storage.Storage = (*Store)(nil)

const (
	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	// argon2id parameters (RFC 9106 second recommended option)
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// sealedMagic prefixes files written with a passphrase
var sealedMagic = []byte("WCS1")

// Store keeps one scope in a single JSON file. Every call re-reads the file
// so separate processes sharing the path observe each other's writes.
type Store struct {
	path       string
	passphrase []byte
	logger     zerolog.Logger

	lock    sync.Mutex
	salt    []byte
	derived *[keyLength]byte
}

// Option configures a Store
type Option func(*Store)

// WithPassphrase seals the file with secretbox using an argon2id derived key
func WithPassphrase(passphrase string) Option {
	return func(s *Store) {
		if passphrase != "" {
			s.passphrase = []byte(passphrase)
		}
	}
}

// WithLogger overrides the global zerolog logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(path string, options ...Option) *Store {
	s := &Store{
		path:   path,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "filestore").Str("path", path).Logger()
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(key string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values := s.load()
	v, ok := values[key]
	return v, ok
}

func (s *Store) Set(key, value string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values := s.load()
	values[key] = value
	if err := s.save(values); err != nil {
		s.logger.Err(err).Str("key", key).Msg("Failed to persist value")
	}
}

func (s *Store) Remove(key string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values := s.load()
	if _, ok := values[key]; !ok {
		return
	}
	delete(values, key)
	if err := s.save(values); err != nil {
		s.logger.Err(err).Str("key", key).Msg("Failed to remove value")
	}
}

// load never fails: a missing, unreadable or undecryptable file is an empty scope
func (s *Store) load() map[string]string {
	values := make(map[string]string)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Msg("Failed to read store, treating as empty")
		}
		return values
	}

	if bytes.HasPrefix(raw, sealedMagic) {
		raw, err = s.open(raw[len(sealedMagic):])
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to open sealed store, treating as empty")
			return values
		}
	}

	if err := json.Unmarshal(raw, &values); err != nil {
		s.logger.Warn().Err(err).Msg("Corrupt store, treating as empty")
		return make(map[string]string)
	}
	return values
}

func (s *Store) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	if s.passphrase != nil {
		sealed, err := s.seal(data)
		if err != nil {
			return err
		}
		data = append(append([]byte{}, sealedMagic...), sealed...)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	return nil
}

// seal layout: salt | nonce | secretbox(data)
func (s *Store) seal(data []byte) ([]byte, error) {
	if s.derived == nil {
		salt := make([]byte, saltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		s.deriveKey(salt)
	}

	var nonce [nonceLength]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltLength+nonceLength+len(data)+secretbox.Overhead)
	out = append(out, s.salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, data, &nonce, s.derived), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if s.passphrase == nil {
		return nil, fmt.Errorf("store is sealed and no passphrase is configured")
	}
	if len(sealed) < saltLength+nonceLength+secretbox.Overhead {
		return nil, fmt.Errorf("sealed store truncated")
	}

	salt := sealed[:saltLength]
	if s.derived == nil || !bytes.Equal(salt, s.salt) {
		s.deriveKey(salt)
	}

	var nonce [nonceLength]byte
	copy(nonce[:], sealed[saltLength:saltLength+nonceLength])

	data, ok := secretbox.Open(nil, sealed[saltLength+nonceLength:], &nonce, s.derived)
	if !ok {
		return nil, fmt.Errorf("wrong passphrase or tampered store")
	}
	return data, nil
}

func (s *Store) deriveKey(salt []byte) {
	var key [keyLength]byte
	copy(key[:], argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, keyLength))
	s.salt = append([]byte{}, salt...)
	s.derived = &key
}
