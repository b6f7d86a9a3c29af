package session

import (
	"fmt"
	"time"

	"shorts-bot/types"
)

// State is where a chat is in the conversation.
type State int

const (
	AwaitingTopic State = iota
	AwaitingPrompt
	CollectingImages
	VideoReady
	AwaitingScheduleTime
)

func (s State) String() string {
	switch s {
	case AwaitingTopic:
		return "awaiting_topic"
	case AwaitingPrompt:
		return "awaiting_prompt"
	case CollectingImages:
		return "collecting_images"
	case VideoReady:
		return "video_ready"
	case AwaitingScheduleTime:
		return "awaiting_schedule_time"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Choice is the answer to "upload now or later?".
type Choice int

const (
	ChoiceImmediate Choice = iota + 1
	ChoiceSchedule
)

func (c Choice) String() string {
	switch c {
	case ChoiceImmediate:
		return "immediate"
	case ChoiceSchedule:
		return "schedule"
	default:
		return fmt.Sprintf("choice(%d)", int(c))
	}
}

// ParseChoice maps "immediate"/"now" and "schedule"/"later" to a Choice.
func ParseChoice(s string) (Choice, bool) {
	switch s {
	case "immediate", "now":
		return ChoiceImmediate, true
	case "schedule", "later":
		return ChoiceSchedule, true
	default:
		return 0, false
	}
}

// Session is one chat's progress toward a video. Fields fill strictly in
// the order topic, prompt, images, video.
type Session struct {
	ChatID    int64
	UserID    int64
	State     State
	Topic     string
	Prompt    string
	Images    []string
	VideoPath string
	StartedAt time.Time
}

// uploadRequest snapshots what an upload needs; the session may be gone by
// the time the request is used.
func (s *Session) uploadRequest() types.UploadRequest {
	return types.UploadRequest{
		VideoPath:   s.VideoPath,
		Title:       s.Topic,
		Description: s.Prompt,
		ChatID:      s.ChatID,
		UserID:      s.UserID,
	}
}
