package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"shorts-bot/types"
)

// Publisher is the hosting platform.
type Publisher interface {
	Publish(ctx context.Context, v Video, refreshToken string) (videoID string, err error)
	WatchURL(videoID string) string
}

// Credentials looks up a user's refresh token.
type Credentials interface {
	Get(userID int64) (token string, ok bool, err error)
}

// Dispatcher performs one upload for a request: credential lookup, publish,
// upload log. It never retries; callers decide what to tell the user.
type Dispatcher struct {
	tokens    Credentials
	publisher Publisher
	logDir    string
	logger    zerolog.Logger
	now       func() time.Time
}

func NewDispatcher(tokens Credentials, publisher Publisher, logDir string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		tokens:    tokens,
		publisher: publisher,
		logDir:    logDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload publishes req.VideoPath and returns the watch URL. A user without a
// stored token gets types.ErrMissingCredential and no API call is made; any
// other failure wraps types.ErrUpload.
func (d *Dispatcher) Upload(ctx context.Context, req types.UploadRequest) (string, error) {
	log := d.logger.With().Int64("chat_id", req.ChatID).Int64("user_id", req.UserID).Logger()

	token, ok, err := d.tokens.Get(req.UserID)
	if err != nil {
		return "", fmt.Errorf("%w: load credential: %w", types.ErrUpload, err)
	}
	if !ok {
		log.Warn().Msg("no refresh token on file")
		return "", fmt.Errorf("user %d: %w", req.UserID, types.ErrMissingCredential)
	}

	videoID, err := d.publisher.Publish(ctx, Video{
		File:        req.VideoPath,
		Title:       req.Title,
		Description: req.Description,
	}, token)
	if err != nil {
		log.Error().Err(err).Msg("upload failed")
		return "", fmt.Errorf("%w: %w", types.ErrUpload, err)
	}

	url := d.publisher.WatchURL(videoID)
	log.Info().Str("video_url", url).Msg("upload complete")

	if err := d.logUpload(req, videoID, url); err != nil {
		log.Warn().Err(err).Msg("could not write upload log")
	}
	return url, nil
}

// logUpload saves the upload result to the logs directory
func (d *Dispatcher) logUpload(req types.UploadRequest, videoID, url string) error {
	if d.logDir == "" {
		return nil
	}
	if err := os.MkdirAll(d.logDir, 0o755); err != nil {
		return err
	}
	now := d.now()
	rec := types.UploadRecord{
		VideoID:    videoID,
		VideoURL:   url,
		Title:      req.Title,
		ChatID:     req.ChatID,
		UserID:     req.UserID,
		VideoFile:  req.VideoPath,
		UploadedAt: now.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("upload_%s_%s.json", now.Format("20060102_150405"), videoID)
	return os.WriteFile(filepath.Join(d.logDir, name), data, 0o644)
}
