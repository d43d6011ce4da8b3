package chat

import "time"

// Roles a transcript message can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn in the widget transcript. Immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Request is the body of POST /api/chat: one utterance as an audio data URI.
type Request struct {
	AudioDataURI string `json:"audioDataUri"`
}

// AIResponse carries the assistant reply. AudioDataURI is empty when speech
// synthesis was unavailable and the exchange degraded to text only.
type AIResponse struct {
	Text         string `json:"text"`
	AudioDataURI string `json:"audioDataUri"`
}

// Response is the body of a successful POST /api/chat.
type Response struct {
	Transcription string     `json:"transcription"`
	AIResponse    AIResponse `json:"aiResponse"`
}
