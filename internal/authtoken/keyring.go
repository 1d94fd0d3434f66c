// Package authtoken keeps the API bearer token in the OS keychain, falling
// back to a private file where no keyring service is available.
package authtoken

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name tokens are stored under.
const DefaultService = "idleforge"

const tokenBytes = 32

// ErrNotFound is returned when no token has been stored.
var ErrNotFound = keyring.ErrNotFound

// Store wraps the OS keychain with an optional file fallback.
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewStore creates a keyring wrapper.
func NewStore(serviceName, fallbackPath string) *Store {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = DefaultService
	}
	return &Store{
		service:      serviceName,
		fallbackPath: fallbackPath,
	}
}

// Set stores token under name.
func (s *Store) Set(name, token string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("authtoken: token name is required")
	}

	if err := keyring.Set(s.service, name, token); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("authtoken: keyring set %s: %w", name, err)
	}

	return s.setFallback(name, token)
}

// Get returns the token stored under name, or ErrNotFound.
func (s *Store) Get(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("authtoken: token name is required")
	}

	val, err := keyring.Get(s.service, name)
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("authtoken: keyring get %s: %w", name, err)
	}

	fallback, ferr := s.getFallback(name)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Delete removes name from the keyring and the fallback file.
func (s *Store) Delete(name string) error {
	err := keyring.Delete(s.service, name)
	ferr := s.deleteFallback(name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		return fmt.Errorf("authtoken: keyring delete %s: %w", name, err)
	}
	return ferr
}

// Ensure returns the stored token for name, generating and storing a new one
// when none exists. created reports whether a token was generated.
func (s *Store) Ensure(name string) (token string, created bool, err error) {
	token, err = s.Get(name)
	if err == nil && token != "" {
		return token, false, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", false, err
	}

	token, err = Generate()
	if err != nil {
		return "", false, err
	}
	if err := s.Set(name, token); err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Generate returns a random hex token.
func Generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("authtoken: generate: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available") ||
		errors.Is(err, keyring.ErrUnsupportedPlatform)
}

type fallbackSecrets map[string]string

func (s *Store) setFallback(name, value string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return fmt.Errorf("authtoken: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[name] = value
	return s.writeFallbackUnlocked(data)
}

func (s *Store) getFallback(name string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", fmt.Errorf("authtoken: fallback path not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	val, ok := data[name]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *Store) deleteFallback(name string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[name]; !ok {
		return nil
	}
	delete(data, name)
	return s.writeFallbackUnlocked(data)
}

func (s *Store) readFallbackUnlocked() (fallbackSecrets, error) {
	out := fallbackSecrets{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("authtoken: read fallback secrets: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("authtoken: decode fallback secrets: %w", err)
	}
	return out, nil
}

func (s *Store) writeFallbackUnlocked(data fallbackSecrets) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("authtoken: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("authtoken: encode fallback secrets: %w", err)
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("authtoken: write fallback secrets: %w", err)
	}
	return nil
}
