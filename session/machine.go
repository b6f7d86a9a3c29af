package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shorts-bot/config"
	"shorts-bot/scheduler"
	"shorts-bot/types"
)

// Notifier sends text back to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
	// AskChoice sends text with "upload now" and "schedule" buttons.
	AskChoice(ctx context.Context, chatID int64, text string) error
}

type ImageStore interface {
	Save(ctx context.Context, chatID int64, index int, data []byte) (string, error)
	Discard(chatID int64) error
}

type Assembler interface {
	Assemble(ctx context.Context, chatID int64, prompt string, images []string) (string, error)
	Discard(videoPath string) error
}

type Uploader interface {
	Upload(ctx context.Context, req types.UploadRequest) (string, error)
}

type Scheduler interface {
	Enqueue(ctx context.Context, payload types.UploadRequest, fireAt time.Time) (types.ScheduledJob, error)
}

// Deps are the collaborators a Machine drives.
type Deps struct {
	Notifier  Notifier
	Images    ImageStore
	Assembler Assembler
	Uploader  Uploader
	Scheduler Scheduler
}

const (
	msgAskTopic    = "Send me the topic of your video."
	msgAskPrompt   = "Got it. Now send the narration prompt."
	msgAskImages   = "Now send %d images."
	msgImageSaved  = "Image %d saved."
	msgCreating    = "Creating video, please wait..."
	msgVideoReady  = "Video ready! Upload now or schedule it?"
	msgAskTime     = "Send the upload time: +MINUTES (e.g. +10) or HH:MM (e.g. 14:30)."
	msgUploaded    = "Uploaded!\n%s"
	msgCancelled   = "Cancelled. Send /start to make a new video."
	msgNoSession   = "Nothing to cancel."
	msgImageFailed = "Could not save that image, please send it again."
	msgSchedFailed = "Could not schedule the upload, please send the time again."
)

// Machine owns the per-chat conversation. Each handler runs one transition
// to completion while holding the chat's lock.
type Machine struct {
	reg            *Registry
	deps           Deps
	imagesRequired int
	maxDelay       int
	logger         zerolog.Logger
	now            func() time.Time
}

func NewMachine(cfg *config.Config, deps Deps, logger zerolog.Logger) *Machine {
	return &Machine{
		reg:            NewRegistry(),
		deps:           deps,
		imagesRequired: cfg.Video.ImagesRequired,
		maxDelay:       cfg.Schedule.MaxDelayMinutes,
		logger:         logger,
		now:            time.Now,
	}
}

// Start creates a fresh session for chatID, replacing any existing one.
func (m *Machine) Start(ctx context.Context, chatID int64) error {
	unlock := m.reg.Lock(chatID)
	defer unlock()

	if old, ok := m.reg.Get(chatID); ok {
		m.logger.Info().Int64("chat_id", chatID).Stringer("state", old.State).Msg("replacing session")
		m.destroy(old, true)
	}
	m.reg.Put(&Session{ChatID: chatID, State: AwaitingTopic, StartedAt: m.now()})
	m.notify(ctx, chatID, msgAskTopic)
	return nil
}

// HandleText consumes a plain text message.
func (m *Machine) HandleText(ctx context.Context, chatID, userID int64, text string) error {
	unlock := m.reg.Lock(chatID)
	defer unlock()

	s, ok := m.reg.Get(chatID)
	if !ok {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	switch s.State {
	case AwaitingTopic:
		s.UserID = userID
		s.Topic = text
		s.State = AwaitingPrompt
		m.notify(ctx, chatID, msgAskPrompt)
	case AwaitingPrompt:
		s.UserID = userID
		s.Prompt = text
		s.State = CollectingImages
		m.notify(ctx, chatID, fmt.Sprintf(msgAskImages, m.imagesRequired))
	case AwaitingScheduleTime:
		s.UserID = userID
		return m.schedule(ctx, s, text)
	case CollectingImages, VideoReady:
		// not expecting text
	}
	return nil
}

func (m *Machine) schedule(ctx context.Context, s *Session, text string) error {
	fire, err := scheduler.ParseFireTime(text, m.now(), m.maxDelay)
	if err != nil {
		m.notify(ctx, s.ChatID, types.UserMessage(err))
		return err
	}
	job, err := m.deps.Scheduler.Enqueue(ctx, s.uploadRequest(), fire.At)
	if err != nil {
		m.logger.Error().Err(err).Int64("chat_id", s.ChatID).Msg("enqueue failed")
		m.notify(ctx, s.ChatID, msgSchedFailed)
		return err
	}
	m.logger.Info().Int64("chat_id", s.ChatID).Str("job_id", job.ID).Time("fire_at", job.FireAt).Msg("upload scheduled")
	// The job owns the video now.
	m.destroy(s, false)
	m.notify(ctx, s.ChatID, fire.Confirmation())
	return nil
}

// HandleImage stores one image. The image that completes the set triggers
// assembly before the call returns.
func (m *Machine) HandleImage(ctx context.Context, chatID int64, data []byte) error {
	unlock := m.reg.Lock(chatID)
	defer unlock()

	s, ok := m.reg.Get(chatID)
	if !ok {
		return nil
	}
	switch s.State {
	case CollectingImages:
	case AwaitingTopic, AwaitingPrompt, VideoReady, AwaitingScheduleTime:
		return nil
	}

	path, err := m.deps.Images.Save(ctx, chatID, len(s.Images), data)
	if err != nil {
		m.logger.Error().Err(err).Int64("chat_id", chatID).Msg("image save failed")
		m.notify(ctx, chatID, msgImageFailed)
		return err
	}
	s.Images = append(s.Images, path)
	m.notify(ctx, chatID, fmt.Sprintf(msgImageSaved, len(s.Images)))
	if len(s.Images) < m.imagesRequired {
		return nil
	}

	m.notify(ctx, chatID, msgCreating)
	video, err := m.deps.Assembler.Assemble(ctx, chatID, s.Prompt, s.Images)
	if err != nil {
		m.logger.Error().Err(err).Int64("chat_id", chatID).Msg("assembly failed")
		m.destroy(s, true)
		m.notify(ctx, chatID, types.UserMessage(err))
		return err
	}
	s.VideoPath = video
	s.State = VideoReady
	if err := m.deps.Notifier.AskChoice(ctx, chatID, msgVideoReady); err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send choice")
	}
	return nil
}

// HandleChoice answers the upload now / schedule question.
func (m *Machine) HandleChoice(ctx context.Context, chatID, userID int64, choice Choice) error {
	unlock := m.reg.Lock(chatID)
	defer unlock()

	s, ok := m.reg.Get(chatID)
	if !ok || s.State != VideoReady {
		m.notify(ctx, chatID, types.UserMessage(types.ErrExpiredSession))
		return fmt.Errorf("chat %d: %w", chatID, types.ErrExpiredSession)
	}
	if userID != 0 {
		s.UserID = userID
	}

	switch choice {
	case ChoiceImmediate:
		req := s.uploadRequest()
		m.destroy(s, false)
		url, err := m.deps.Uploader.Upload(ctx, req)
		m.discardVideo(req.VideoPath)
		if err != nil {
			m.logger.Error().Err(err).Int64("chat_id", chatID).Msg("upload failed")
			m.notify(ctx, chatID, types.UserMessage(err))
			return err
		}
		m.notify(ctx, chatID, fmt.Sprintf(msgUploaded, url))
	case ChoiceSchedule:
		s.State = AwaitingScheduleTime
		m.notify(ctx, chatID, msgAskTime)
	default:
		return fmt.Errorf("unknown choice %d", choice)
	}
	return nil
}

// Cancel drops the chat's session and its files.
func (m *Machine) Cancel(ctx context.Context, chatID int64) error {
	unlock := m.reg.Lock(chatID)
	defer unlock()

	s, ok := m.reg.Get(chatID)
	if !ok {
		m.notify(ctx, chatID, msgNoSession)
		return nil
	}
	m.destroy(s, true)
	m.notify(ctx, chatID, msgCancelled)
	return nil
}

// Active reports the chat's current state, if it has a session.
func (m *Machine) Active(chatID int64) (State, bool) {
	unlock := m.reg.Lock(chatID)
	defer unlock()

	s, ok := m.reg.Get(chatID)
	if !ok {
		return 0, false
	}
	return s.State, true
}

// Sessions is the number of live sessions.
func (m *Machine) Sessions() int {
	return m.reg.Len()
}

// destroy removes s from the registry and deletes its images. The video is
// removed too unless something else now owns it.
func (m *Machine) destroy(s *Session, withVideo bool) {
	m.reg.Delete(s.ChatID)
	m.logger.Info().
		Int64("chat_id", s.ChatID).
		Stringer("state", s.State).
		Dur("age", m.now().Sub(s.StartedAt)).
		Msg("session ended")
	if err := m.deps.Images.Discard(s.ChatID); err != nil {
		m.logger.Warn().Err(err).Int64("chat_id", s.ChatID).Msg("failed to discard images")
	}
	if withVideo {
		m.discardVideo(s.VideoPath)
	}
}

func (m *Machine) discardVideo(path string) {
	if path == "" {
		return
	}
	if err := m.deps.Assembler.Discard(path); err != nil {
		m.logger.Warn().Err(err).Str("video", path).Msg("failed to discard video")
	}
}

func (m *Machine) notify(ctx context.Context, chatID int64, text string) {
	if err := m.deps.Notifier.Notify(ctx, chatID, text); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to notify")
	}
}
