// Package credentials keeps the player's bearer token in the OS keychain,
// with a JSON file fallback for hosts that have no keyring backend.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no token is stored for a profile.
var ErrNotFound = keyring.ErrNotFound

const (
	defaultService = "raid-extract"
	partToken      = "token"
)

// Store wraps the OS keychain with an optional file fallback.
type Store struct {
	service      string
	fallbackPath string
	mu           sync.Mutex
}

// NewStore creates a token store. An empty fallbackPath disables the file
// fallback.
func NewStore(serviceName, fallbackPath string) *Store {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultService
	}
	return &Store{service: serviceName, fallbackPath: fallbackPath}
}

// DefaultFallbackPath is credentials.json under the user config directory.
func DefaultFallbackPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, defaultService, "credentials.json")
}

func (s *Store) key(profile string) string {
	return fmt.Sprintf("%s/%s", profile, partToken)
}

// SetToken stores token for profile.
func (s *Store) SetToken(profile, token string) error {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return errors.New("credentials: profile is required")
	}

	err := keyring.Set(s.service, s.key(profile), token)
	if err == nil {
		return nil
	}
	if !isKeyringUnavailable(err) {
		return errors.Wrap(err, "credentials: keyring set")
	}
	return s.setFallback(profile, token)
}

// Token returns the stored token for profile, or ErrNotFound.
func (s *Store) Token(profile string) (string, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", errors.New("credentials: profile is required")
	}

	val, err := keyring.Get(s.service, s.key(profile))
	if err == nil {
		return val, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", errors.Wrap(err, "credentials: keyring get")
	}

	fallback, ferr := s.getFallback(profile)
	if ferr == nil {
		return fallback, nil
	}
	if errors.Is(err, keyring.ErrNotFound) || errors.Is(ferr, ErrNotFound) {
		return "", ErrNotFound
	}
	return "", ferr
}

// Delete removes profile's token from the keychain and the fallback file.
func (s *Store) Delete(profile string) error {
	err := keyring.Delete(s.service, s.key(profile))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		// still clear the fallback copy
		_ = s.deleteFallback(profile)
		return errors.Wrap(err, "credentials: keyring delete")
	}
	return s.deleteFallback(profile)
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackTokens map[string]string

func (s *Store) setFallback(profile, token string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return errors.New("credentials: keyring unavailable and no fallback path configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[profile] = token
	return s.writeFallbackUnlocked(data)
}

func (s *Store) getFallback(profile string) (string, error) {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return "", errors.New("credentials: fallback path not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return "", err
	}
	tok, ok := data[profile]
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

func (s *Store) deleteFallback(profile string) error {
	if strings.TrimSpace(s.fallbackPath) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[profile]; !ok {
		return nil
	}
	delete(data, profile)
	return s.writeFallbackUnlocked(data)
}

func (s *Store) readFallbackUnlocked() (fallbackTokens, error) {
	out := fallbackTokens{}
	raw, err := os.ReadFile(s.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, errors.Wrap(err, "credentials: read fallback")
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "credentials: decode fallback")
	}
	return out, nil
}

func (s *Store) writeFallbackUnlocked(data fallbackTokens) error {
	if err := os.MkdirAll(filepath.Dir(s.fallbackPath), 0o700); err != nil {
		return errors.Wrap(err, "credentials: mkdir fallback dir")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "credentials: encode fallback")
	}
	if err := os.WriteFile(s.fallbackPath, raw, 0o600); err != nil {
		return errors.Wrap(err, "credentials: write fallback")
	}
	return nil
}
