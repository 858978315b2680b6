package protocol

import (
	"strings"
	"time"
)

// EventKind classifies an inbound chat event
type EventKind string

const (
	EventText    EventKind = "text"    // plain text message
	EventPhoto   EventKind = "photo"   // photo upload
	EventContact EventKind = "contact" // contact share (phone verification)
	EventCommand EventKind = "command" // slash command, e.g. /start
)

// Event represents a single inbound event from the messaging transport.
// Events are ephemeral: constructed per update and consumed immediately by
// the router.
type Event struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	Identity  string            `json:"identity"` // chat/user ID as delivered by the transport
	Text      string            `json:"text,omitempty"`
	PhotoRef  string            `json:"photo_ref,omitempty"` // transport file reference for photo events
	Phone     string            `json:"phone,omitempty"`     // contact events only
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Command returns the bare command name for command events,
// e.g. "/start@my_bot arg" -> "start".
func (e *Event) Command() string {
	if e.Kind != EventCommand {
		return ""
	}
	cmd := strings.TrimPrefix(e.Text, "/")
	if i := strings.IndexAny(cmd, " @"); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}

// KeyboardKind selects which reply keyboard (if any) accompanies a reply
type KeyboardKind string

const (
	KeyboardNone    KeyboardKind = ""
	KeyboardContact KeyboardKind = "contact" // single share-contact button
	KeyboardMenu    KeyboardKind = "menu"    // main menu options
	KeyboardRemove  KeyboardKind = "remove"  // clear any custom keyboard
)

// Reply represents an outbound message to be delivered by the transport
type Reply struct {
	Identity string       `json:"identity"`
	Text     string       `json:"text"`
	Keyboard KeyboardKind `json:"keyboard,omitempty"`
	Markdown bool         `json:"markdown,omitempty"`
}
