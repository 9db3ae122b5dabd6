// Package credential holds the single bearer token used to authorize API
// requests. The default store persists it in ~/.config/famigo/credential.toml.
package credential

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Store reads, writes and clears the one live credential. Implementations
// never fail: storage faults read as "no credential".
type Store interface {
	Get() (string, bool)
	Set(token string)
	Clear()
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

const defaultCredentialPath = "~/.config/famigo/credential.toml"

type fileContents struct {
	AccessToken string `toml:"access_token"`
}

// DefaultPath returns the default credential file path.
func DefaultPath() string {
	return defaultCredentialPath
}

// FileStore keeps the token in a TOML file readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

// NewFileStore returns a FileStore rooted at path (empty uses DefaultPath).
func NewFileStore(path string, log zerolog.Logger) *FileStore {
	resolved, err := resolvePath(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("credential path unusable, falling back to memory-only")
		resolved = ""
	}
	return &FileStore{path: resolved, log: log}
}

// Path returns the resolved file path, or "" when unusable.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the stored token.
func (s *FileStore) Get() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return "", false
	}
	file, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Msg("open credential file")
		}
		return "", false
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		s.log.Warn().Err(err).Msg("read credential file")
		return "", false
	}

	var contents fileContents
	if err := toml.Unmarshal(bytes, &contents); err != nil {
		s.log.Warn().Err(err).Msg("parse credential file")
		return "", false
	}
	token := strings.TrimSpace(contents.AccessToken)
	return token, token != ""
}

// Set replaces the stored token. Write failures are logged and dropped.
func (s *FileStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(fileContents{AccessToken: token}); err != nil {
		s.log.Warn().Err(err).Msg("save credential")
	}
}

// Clear removes the stored token.
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Err(err).Msg("remove credential file")
		// A token we failed to delete must not be read back as a session.
		_ = s.write(fileContents{})
	}
}

func (s *FileStore) write(c fileContents) error {
	if s.path == "" {
		return fmt.Errorf("credential path unusable")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	bytes, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := os.WriteFile(s.path, bytes, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a MemoryStore seeded with token (may be "").
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultCredentialPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
