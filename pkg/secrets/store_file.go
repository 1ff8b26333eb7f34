package secrets

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// FileVersion is the current version of the secret file format.
const FileVersion = 1

// scrypt parameters for key derivation.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// File store errors.
var (
	ErrBadPassphrase = errors.New("cannot decrypt secret store: wrong passphrase or corrupt file")
)

// fileEnvelope is the on-disk structure. The payload (a JSON map of
// key→value) is sealed with ChaCha20-Poly1305 under a key derived from
// the passphrase with scrypt.
type fileEnvelope struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Sealed  []byte `json:"sealed"`
}

// FileStore is an encrypted file-based implementation of the Store
// interface. All values live in a single document that is rewritten
// atomically on every mutation, so a crash never leaves a partially
// updated credential pair on disk.
type FileStore struct {
	mu   sync.Mutex
	path string
	key  []byte
	salt []byte

	values map[string]string
	loaded bool
}

// NewFileStore creates a file-based secret store at path, encrypting with
// a key derived from passphrase. The file is created on first Store call.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}

	s := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	if err := s.load(passphrase); err != nil {
		return nil, err
	}
	return s, nil
}

// Store persists a value under a key and rewrites the file.
func (s *FileStore) Store(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.save()
}

// Retrieve returns the value for a key.
func (s *FileStore) Retrieve(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.values[key]
	if !exists {
		return "", ErrNotFound
	}
	return value, nil
}

// Delete removes the value for a key and rewrites the file.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.values[key]; !exists {
		return nil
	}
	delete(s.values, key)
	return s.save()
}

// load reads and decrypts the file, deriving the key from passphrase.
// A missing file is an empty store; the salt is generated fresh.
func (s *FileStore) load(passphrase string) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return err
		}
		key, err := deriveKey(passphrase, salt)
		if err != nil {
			return err
		}
		s.salt = salt
		s.key = key
		s.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("corrupt secret store file: %w", err)
	}

	key, err := deriveKey(passphrase, env.Salt)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Sealed, nil)
	if err != nil {
		return ErrBadPassphrase
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return fmt.Errorf("corrupt secret store payload: %w", err)
	}

	s.salt = env.Salt
	s.key = key
	s.values = values
	s.loaded = true
	return nil
}

// save encrypts and writes the store. Callers must hold s.mu.
// Write-temp-then-rename keeps the previous file intact on failure.
func (s *FileStore) save() error {
	plaintext, err := json.Marshal(s.values)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	env := fileEnvelope{
		Version: FileVersion,
		Salt:    s.salt,
		Nonce:   nonce,
		Sealed:  aead.Seal(nil, nonce, plaintext, nil),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// deriveKey derives the sealing key from the passphrase and salt.
func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
}

// Compile-time interface satisfaction check.
var _ Store = (*FileStore)(nil)
