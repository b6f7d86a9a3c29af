package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"shorts-bot/session"
)

const maxImageBytes = 20 << 20

const msgBusy = "Still working on your earlier messages. Please resend that one in a moment."

// Conversation is the per-chat state machine the bot feeds.
type Conversation interface {
	Start(ctx context.Context, chatID int64) error
	HandleText(ctx context.Context, chatID, userID int64, text string) error
	HandleImage(ctx context.Context, chatID int64, data []byte) error
	HandleChoice(ctx context.Context, chatID, userID int64, choice session.Choice) error
	Cancel(ctx context.Context, chatID int64) error
	Active(chatID int64) (session.State, bool)
}

type TokenSaver interface {
	Save(userID int64, token string) error
}

type botAPI interface {
	sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot long-polls Telegram and routes updates into the conversation.
type Bot struct {
	api      botAPI
	conv     Conversation
	tokens   TokenSaver
	notifier *Notifier
	http     *http.Client
	queues   *chatQueues
	logger   zerolog.Logger
	timeout  int
}

// Connect authenticates with the bot token.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return api, nil
}

func NewBot(api botAPI, conv Conversation, tokens TokenSaver, notifier *Notifier, logger zerolog.Logger) *Bot {
	return &Bot{
		api:      api,
		conv:     conv,
		tokens:   tokens,
		notifier: notifier,
		http:     &http.Client{Timeout: 60 * time.Second},
		queues:   newChatQueues(),
		logger:   logger,
		timeout:  30,
	}
}

// Run polls until ctx is done, then waits for in-flight events to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info().Msg("polling for updates")

	defer b.queues.wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	chatID, ok := chatOf(update)
	if !ok {
		return
	}
	if cq := update.CallbackQuery; cq != nil {
		// Stop the button spinner right away; the choice itself queues below.
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.logger.Debug().Err(err).Msg("callback answer failed")
		}
	}
	if !b.queues.submit(chatID, func() { b.handle(ctx, chatID, update) }) {
		b.logger.Warn().Int64("chat_id", chatID).Msg("chat queue full, dropping update")
		if err := b.notifier.Notify(ctx, chatID, msgBusy); err != nil {
			b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("busy notice failed")
		}
	}
}

func chatOf(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	default:
		return 0, false
	}
}

func (b *Bot) handle(ctx context.Context, chatID int64, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.handleCallback(ctx, chatID, update.CallbackQuery)
	case update.Message != nil:
		err = b.handleMessage(ctx, chatID, update.Message)
	}
	if err != nil {
		// Outcomes were already reported to the chat by the conversation.
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("update handled with error")
	}
}

func (b *Bot) handleCallback(ctx context.Context, chatID int64, cq *tgbotapi.CallbackQuery) error {
	choice, ok := choiceFromData(cq.Data)
	if !ok {
		return fmt.Errorf("unknown callback data %q", cq.Data)
	}
	var userID int64
	if cq.From != nil {
		userID = cq.From.ID
	}
	return b.conv.HandleChoice(ctx, chatID, userID, choice)
}

func (b *Bot) handleMessage(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	if len(msg.Photo) > 0 {
		data, err := b.downloadPhoto(ctx, msg.Photo)
		if err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("photo download failed")
			return b.notifier.Notify(ctx, chatID, "Could not download that image, please send it again.")
		}
		return b.conv.HandleImage(ctx, chatID, data)
	}

	name, args, isCmd := parseCommand(msg.Text)
	if !isCmd {
		if msg.Text == "" {
			return nil
		}
		return b.conv.HandleText(ctx, chatID, userID, msg.Text)
	}

	switch name {
	case cmdStart:
		return b.conv.Start(ctx, chatID)
	case cmdSetToken, cmdSet:
		return b.setToken(ctx, chatID, userID, msg.MessageID, name, args)
	case cmdCancel:
		return b.conv.Cancel(ctx, chatID)
	case cmdStatus:
		return b.notifier.Notify(ctx, chatID, b.status(chatID))
	default:
		return nil
	}
}

func (b *Bot) setToken(ctx context.Context, chatID, userID int64, messageID int, name, args string) error {
	token, ok := tokenArgument(name, args)
	if !ok {
		if name == cmdSet {
			return nil
		}
		return b.notifier.Notify(ctx, chatID, usageSetToken)
	}
	if err := b.tokens.Save(userID, token); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("token save failed")
		return b.notifier.Notify(ctx, chatID, "Could not save the token, please try again.")
	}
	b.logger.Info().Int64("user_id", userID).Msg("refresh token saved")

	// The token should not stay visible in the chat history.
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("could not delete token message")
	}
	return b.notifier.Notify(ctx, chatID, "Token saved!")
}

func (b *Bot) status(chatID int64) string {
	st, ok := b.conv.Active(chatID)
	if !ok {
		return "No active session. Send /start to make a new video."
	}
	switch st {
	case session.AwaitingTopic:
		return "Waiting for the video topic."
	case session.AwaitingPrompt:
		return "Waiting for the narration prompt."
	case session.CollectingImages:
		return "Collecting images."
	case session.VideoReady:
		return "Video ready. Choose Upload Now or Schedule."
	case session.AwaitingScheduleTime:
		return "Waiting for the upload time (+MINUTES or HH:MM)."
	default:
		return "Session state: " + st.String()
	}
}

// downloadPhoto fetches the largest size Telegram offers.
func (b *Bot) downloadPhoto(ctx context.Context, sizes []tgbotapi.PhotoSize) ([]byte, error) {
	best := largestPhoto(sizes)
	url, err := b.api.GetFileDirectURL(best.FileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("photo exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty photo")
	}
	return data, nil
}

func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
