package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FileStore keeps one refresh token per user in a JSON object keyed by the
// stringified user id. Every Save is a full read-modify-write of the file.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the user's token. ok is false when none is stored.
func (s *FileStore) Get(userID int64) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens, err := s.load()
	if err != nil {
		return "", false, err
	}
	token, ok := tokens[strconv.FormatInt(userID, 10)]
	if !ok || token == "" {
		return "", false, nil
	}
	return token, true, nil
}

// Save stores token for userID, replacing any previous one.
func (s *FileStore) Save(userID int64, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("refresh token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.load()
	if err != nil {
		return err
	}
	tokens[strconv.FormatInt(userID, 10)] = token
	return s.write(tokens)
}

func (s *FileStore) load() (map[string]string, error) {
	tokens := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return tokens, nil
		}
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return tokens, nil
	}
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}
	return tokens, nil
}

// write replaces the file atomically so readers never see a partial document.
func (s *FileStore) write(tokens map[string]string) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tokens dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("create temp tokens: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tokens: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod tokens: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tokens: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace tokens: %w", err)
	}
	return nil
}
