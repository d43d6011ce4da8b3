package widget

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicelab/voice-widget/backend/internal/model/chat"
)

// Transcript is the ordered, append-only message list driving the visible
// chat panel. Messages are never mutated or removed; it lives only as long
// as the widget instance.
type Transcript struct {
	mu       sync.RWMutex
	messages []chat.Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]chat.Message, 0, 16)}
}

// AppendUser appends a user-role message and returns it.
func (t *Transcript) AppendUser(text string) chat.Message {
	return t.append(chat.RoleUser, text)
}

// AppendAssistant appends an assistant-role message and returns it.
func (t *Transcript) AppendAssistant(text string) chat.Message {
	return t.append(chat.RoleAssistant, text)
}

func (t *Transcript) append(role, text string) chat.Message {
	message := chat.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	t.messages = append(t.messages, message)
	t.mu.Unlock()

	return message
}

// Messages returns a copy of the transcript in insertion order.
func (t *Transcript) Messages() []chat.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	copied := make([]chat.Message, len(t.messages))
	copy(copied, t.messages)
	return copied
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
