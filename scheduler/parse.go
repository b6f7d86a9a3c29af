package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shorts-bot/types"
)

// FireTime is a parsed schedule expression.
type FireTime struct {
	At       time.Time
	Relative bool
	Minutes  int // set for relative expressions
}

// ParseFireTime understands two forms:
//
//	+N     N minutes from now (decimal digits only, N <= maxDelayMinutes)
//	HH:MM  the next occurrence of that 24-hour clock time, strictly after now
//
// Anything else is types.ErrInputFormat.
func ParseFireTime(text string, now time.Time, maxDelayMinutes int) (FireTime, error) {
	text = strings.TrimSpace(text)

	if rest, ok := strings.CutPrefix(text, "+"); ok {
		if rest == "" || !allDigits(rest) {
			return FireTime{}, fmt.Errorf("%w: %q is not a number of minutes", types.ErrInputFormat, rest)
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			return FireTime{}, fmt.Errorf("%w: %v", types.ErrInputFormat, err)
		}
		if n > maxDelayMinutes {
			return FireTime{}, fmt.Errorf("%w: %d minutes exceeds the limit of %d", types.ErrInputFormat, n, maxDelayMinutes)
		}
		return FireTime{At: now.Add(time.Duration(n) * time.Minute), Relative: true, Minutes: n}, nil
	}

	clock, err := time.Parse("15:04", text)
	if err != nil {
		return FireTime{}, fmt.Errorf("%w: %q is not HH:MM", types.ErrInputFormat, text)
	}
	at := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return FireTime{At: at}, nil
}

// Confirmation is the text sent to the chat once the job is queued.
func (f FireTime) Confirmation() string {
	if f.Relative {
		return fmt.Sprintf("Scheduled! Upload will happen in %d minutes.", f.Minutes)
	}
	return fmt.Sprintf("Scheduled! Upload will happen at %s.", f.At.Format("2006-01-02 15:04"))
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
