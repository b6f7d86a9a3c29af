package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shorts-bot/config"
)

// Video is the metadata sent with an upload.
type Video struct {
	File        string
	Title       string
	Description string
}

// YouTube uploads videos through the Data API v3 on behalf of the user that
// owns the refresh token.
type YouTube struct {
	cfg          config.UploadConfig
	clientID     string
	clientSecret string
	logger       zerolog.Logger
}

// NewYouTube creates a new YouTube publisher
func NewYouTube(cfg *config.Config, logger zerolog.Logger) *YouTube {
	return &YouTube{
		cfg:          cfg.Upload,
		clientID:     cfg.Secrets.YouTubeClientID,
		clientSecret: cfg.Secrets.YouTubeClientSecret,
		logger:       logger,
	}
}

// Publish uploads v and returns the new video id.
func (y *YouTube) Publish(ctx context.Context, v Video, refreshToken string) (string, error) {
	if y.clientID == "" || y.clientSecret == "" {
		return "", errors.New("YOUTUBE_CLIENT_ID or YOUTUBE_CLIENT_SECRET not set")
	}

	svc, err := youtube.NewService(ctx, option.WithTokenSource(y.tokenSource(ctx, refreshToken)))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateTitle(v.Title),
			Description: v.Description,
			CategoryId:  y.cfg.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: y.cfg.Visibility,
		},
	}

	f, err := os.Open(v.File)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		y.logger.Info().Str("title", video.Snippet.Title).Float64("size_mb", float64(fi.Size())/1024/1024).Msg("uploading")
	}

	call := y.videosInsert(svc, video).Media(f)
	uploaded, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}
	y.logger.Info().Str("video_id", uploaded.Id).Msg("uploaded")
	return uploaded.Id, nil
}

func (y *YouTube) videosInsert(svc *youtube.Service, video *youtube.Video) *youtube.VideosInsertCall {
	return svc.Videos.Insert([]string{"snippet", "status"}, video)
}

// tokenSource exchanges the stored refresh token for access tokens as needed.
func (y *YouTube) tokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     y.clientID,
		ClientSecret: y.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.TokenSource(ctx, token)
}

// WatchURL builds the canonical watch link for a video id.
func (y *YouTube) WatchURL(videoID string) string {
	return y.cfg.WatchURLBase + videoID
}

// YouTube rejects titles over 100 characters or containing angle brackets.
func truncateTitle(title string) string {
	title = strings.NewReplacer("<", "", ">", "").Replace(strings.TrimSpace(title))
	if title == "" {
		return "Untitled"
	}
	runes := []rune(title)
	if len(runes) > 100 {
		return string(runes[:100])
	}
	return title
}
