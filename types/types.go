package types

import "time"

// UploadRequest is everything the upload step needs. It is a value snapshot,
// never a pointer into a live session.
type UploadRequest struct {
	VideoPath   string `json:"video_path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ChatID      int64  `json:"chat_id"`
	UserID      int64  `json:"user_id"`
}

// ScheduledJob is a deferred upload owned by the scheduler.
type ScheduledJob struct {
	ID         string        `json:"id"`
	FireAt     time.Time     `json:"fire_at"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Payload    UploadRequest `json:"payload"`
}

// UploadRecord is appended to the upload log after a successful upload.
type UploadRecord struct {
	VideoID    string `json:"video_id"`
	VideoURL   string `json:"video_url"`
	Title      string `json:"title"`
	ChatID     int64  `json:"chat_id"`
	UserID     int64  `json:"user_id"`
	VideoFile  string `json:"video_file"`
	UploadedAt string `json:"uploaded_at"`
}
