package telegram

import "strings"

const (
	cmdStart    = "start"
	cmdSetToken = "set_token"
	cmdSet      = "set"
	cmdCancel   = "cancel"
	cmdStatus   = "status"
)

const usageSetToken = "Usage: /set_token <your_refresh_token>"

// parseCommand splits "/name@bot args" into name and args. ok is false for
// text that is not a command.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// tokenArgument extracts the refresh token from "/set_token <t>" or
// "/set token <t>".
func tokenArgument(name, args string) (string, bool) {
	switch name {
	case cmdSetToken:
	case cmdSet:
		sub, rest, _ := strings.Cut(args, " ")
		if !strings.EqualFold(sub, "token") {
			return "", false
		}
		args = strings.TrimSpace(rest)
	default:
		return "", false
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}
