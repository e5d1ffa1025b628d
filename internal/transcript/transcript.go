package transcript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrEmptyConversation is returned when an append carries no messages.
var ErrEmptyConversation = errors.New("transcript: conversation must contain at least one message")

// Message is a single role/content pair. Role is an opaque label
// ("user", "assistant", "system", ...). Content is immutable once
// logged; Feedback is the only field that may be set afterwards.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Feedback string `json:"feedback,omitempty"`
}

// Conversation is one logged exchange, positionally indexed.
type Conversation []Message

// UnmarshalJSON accepts both the current array layout and the legacy
// layout where messages were keyed by stringified index:
// {"0": {...}, "1": {...}}.
func (c *Conversation) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return err
		}
		*c = msgs
		return nil
	}
	var byIndex map[string]Message
	if err := json.Unmarshal(data, &byIndex); err != nil {
		return err
	}
	msgs := make([]Message, len(byIndex))
	for k, m := range byIndex {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(byIndex) {
			return fmt.Errorf("transcript: invalid message index %q", k)
		}
		msgs[i] = m
	}
	*c = msgs
	return nil
}

// document is the persisted per-user record.
type document struct {
	UserID string         `json:"userid"`
	Chats  []Conversation `json:"chats"`
}

// Store owns per-user conversation history. Implementations must be
// safe for concurrent use: operations on distinct users proceed in
// parallel, operations on the same user are serialized.
//
// "No data yet" is a normal state: ListConversations returns an empty
// slice for an unknown user and SetMessageFeedback/DeleteTranscript
// report it as false, never as an error.
type Store interface {
	// AppendConversation logs msgs as a new conversation at the end of
	// the user's transcript, creating the transcript if absent, and
	// returns the zero-based index of the new conversation.
	AppendConversation(userID string, msgs []Message) (int, error)
	// ListConversations returns all conversations logged for the user,
	// oldest first.
	ListConversations(userID string) ([]Conversation, error)
	// SetMessageFeedback attaches feedback to one message, overwriting
	// any previous label. It reports false when the user has no
	// transcript or either index is out of range.
	SetMessageFeedback(userID string, conversationIndex, messageIndex int, feedback string) (bool, error)
	// DeleteTranscript removes all persisted state for the user and
	// reports whether any existed.
	DeleteTranscript(userID string) (bool, error)
}
