package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ImageStore keeps the images a chat sends while its session collects them.
// Files live under <base>/<chatID>/ so a whole session can be dropped at once.
type ImageStore struct {
	basePath string
}

func NewImageStore(basePath string) (*ImageStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &ImageStore{basePath: basePath}, nil
}

// Save writes one image and returns its path. index is the 0-based position
// in the session; the uuid suffix keeps restarted sessions from colliding.
func (s *ImageStore) Save(ctx context.Context, chatID int64, index int, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("storage: empty image")
	}
	dir := s.chatDir(chatID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure chat dir: %w", err)
	}
	name := fmt.Sprintf("bg%d-%s%s", index, uuid.NewString()[:8], extensionFor(data))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write image: %w", err)
	}
	return path, nil
}

// Discard removes every stored image of the chat.
func (s *ImageStore) Discard(chatID int64) error {
	if err := os.RemoveAll(s.chatDir(chatID)); err != nil {
		return fmt.Errorf("storage: discard chat %d: %w", chatID, err)
	}
	return nil
}

func (s *ImageStore) chatDir(chatID int64) string {
	return filepath.Join(s.basePath, strconv.FormatInt(chatID, 10))
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
