package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shorts-bot/types"
)

// Uploader performs the upload for a job payload.
type Uploader interface {
	Upload(ctx context.Context, req types.UploadRequest) (string, error)
}

// Notifier sends a text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Artifacts removes a rendered video once it has been handled.
type Artifacts interface {
	Discard(videoPath string) error
}

// UploadRunner executes scheduled uploads and reports the outcome to the chat
// recorded in the job payload. Failures are reported, never retried.
type UploadRunner struct {
	uploader  Uploader
	notifier  Notifier
	artifacts Artifacts
	logger    zerolog.Logger
}

func NewUploadRunner(uploader Uploader, notifier Notifier, artifacts Artifacts, logger zerolog.Logger) *UploadRunner {
	return &UploadRunner{uploader: uploader, notifier: notifier, artifacts: artifacts, logger: logger}
}

func (r *UploadRunner) Run(ctx context.Context, job types.ScheduledJob) {
	log := r.logger.With().Str("job_id", job.ID).Int64("chat_id", job.Payload.ChatID).Logger()

	var text string
	url, err := r.uploader.Upload(ctx, job.Payload)
	if err != nil {
		log.Error().Err(err).Msg("scheduled upload failed")
		text = fmt.Sprintf("Scheduled upload of %q failed. %s", job.Payload.Title, types.UserMessage(err))
	} else {
		text = fmt.Sprintf("Scheduled upload complete!\n%s", url)
	}

	if err := r.notifier.Notify(ctx, job.Payload.ChatID, text); err != nil {
		log.Warn().Err(err).Msg("could not report scheduled upload")
	}
	if r.artifacts != nil {
		if err := r.artifacts.Discard(job.Payload.VideoPath); err != nil {
			log.Warn().Err(err).Msg("could not discard artifact")
		}
	}
}
