package chatclient

import (
	"encoding/json"
	"fmt"
)

// Message is one entry of the conversation transcript.
type Message struct {
	Text   string
	IsUser bool
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient status line. A new one replaces the previous.
type Notification struct {
	Message string
	Kind    NotificationKind
}

// historyEntry decodes one `[text, isUser]` pair of the history endpoint.
type historyEntry Message

func (e *historyEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("history entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Text); err != nil {
		return fmt.Errorf("history entry text: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.IsUser); err != nil {
		return fmt.Errorf("history entry isUser: %w", err)
	}
	return nil
}
