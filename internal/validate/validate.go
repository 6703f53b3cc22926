// Package validate sanitizes everything a client can put on the wire before it
// reaches room state: room ids, display names, chat text, code payloads.
// All functions are pure; callers branch on the returned error.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	RoomIDMinLen   = 3
	RoomIDMaxLen   = 100
	UsernameMinLen = 2
	UsernameMaxLen = 30
	MessageMaxLen  = 1000
	CodeMaxBytes   = 100_000
)

// Error is a recoverable input rejection. It never tears the connection down;
// transports report Reason back to the sender as-is.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

// escaper кодирует & < > " ' / — тот же набор, что validator.escape()
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// RoomID trims and checks the id: [3,100] chars, alphanumeric plus hyphen and
// underscore. The charset is already safe, so the trimmed value is returned
// unchanged.
func RoomID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", invalid("roomId", "Room ID is required")
	}
	if len(id) < RoomIDMinLen || len(id) > RoomIDMaxLen {
		return "", invalid("roomId", "Room ID must be between 3 and 100 characters")
	}
	for _, r := range id {
		if !isRoomIDChar(r) {
			return "", invalid("roomId", "Room ID contains invalid characters")
		}
	}
	return id, nil
}

func isRoomIDChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// Username trims, HTML-escapes, then checks the escaped rune count against
// [2,30]. Escaping before the length check is deliberate: a borderline-length
// name full of '&' can expand past the limit and must be rejected, not
// truncated.
func Username(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalid("username", "Username is required")
	}
	name = escaper.Replace(name)
	// границы в символах, не в байтах: "Жора" это 4, не 8
	if n := utf8.RuneCountInString(name); n < UsernameMinLen || n > UsernameMaxLen {
		return "", invalid("username", "Username must be between 2 and 30 characters")
	}
	return name, nil
}

// ChatMessage trims, HTML-escapes, and bounds the escaped rune count to
// (0,1000].
func ChatMessage(raw string) (string, error) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "", invalid("message", "Message cannot be empty")
	}
	msg = escaper.Replace(msg)
	if utf8.RuneCountInString(msg) > MessageMaxLen {
		return "", invalid("message", "Message is too long (max 1000 characters)")
	}
	return msg, nil
}

// Code bounds the payload to 100KB. Empty code is fine. Code is never escaped:
// it is rendered in an editor buffer, not as HTML, and must reach the peers
// byte for byte.
func Code(raw string) (string, error) {
	if len(raw) > CodeMaxBytes {
		return "", invalid("code", "Code is too large (max 100KB)")
	}
	return raw, nil
}
