package types

import (
	"errors"
	"strings"
)

var (
	// ErrInputFormat: the schedule time could not be parsed. Recoverable.
	ErrInputFormat = errors.New("invalid time format")
	// ErrMissingCredential: no refresh token on file for the user.
	ErrMissingCredential = errors.New("refresh token not found")
	// ErrAssembly: narration synthesis or video composition failed.
	ErrAssembly = errors.New("video assembly failed")
	// ErrUpload: the hosting API rejected or failed the upload.
	ErrUpload = errors.New("upload failed")
	// ErrExpiredSession: the action refers to a session that no longer exists.
	ErrExpiredSession = errors.New("session expired")
)

// UserMessage renders err as the text sent back to the chat.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputFormat):
		return "Invalid time format. Use +MINUTES (e.g. +10) or HH:MM (e.g. 14:30)."
	case errors.Is(err, ErrMissingCredential):
		return "Refresh token not found. Use /set_token <token> first."
	case errors.Is(err, ErrExpiredSession):
		return "Session expired. Send /start to make a new video."
	case errors.Is(err, ErrAssembly):
		return "Error: " + detail(err, ErrAssembly) + ". Send /start to try again."
	case errors.Is(err, ErrUpload):
		return "Error: " + detail(err, ErrUpload)
	default:
		return "Error: " + err.Error()
	}
}

// detail strips the "<kind>: " prefix produced by fmt.Errorf("%w: %w", kind, cause).
func detail(err, kind error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, kind.Error()+": "); ok && rest != "" {
		return kind.Error() + " (" + rest + ")"
	}
	return msg
}
