package speech

// SpeechConfig carries provider credentials and tuning for the STT/TTS
// clients. BaseURL points at an OpenAI-compatible audio API.
type SpeechConfig struct {
	APIKey   string
	BaseURL  string
	STTModel string
	TTSModel string
	TTSVoice string
	TTSSpeed float32
	Timeout  int // seconds, per provider round trip
}
