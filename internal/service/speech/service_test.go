package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicelab/voice-widget/backend/internal/fault"
	speechmodel "github.com/voicelab/voice-widget/backend/internal/model/speech"
)

func testServiceConfig(baseURL string) *speechmodel.SpeechConfig {
	return &speechmodel.SpeechConfig{
		APIKey:   "sk-test",
		BaseURL:  baseURL,
		STTModel: "whisper-1",
		TTSModel: "tts-1",
		TTSVoice: "alloy",
		TTSSpeed: 1.0,
		Timeout:  5,
	}
}

func TestTranscribeEmptyAudioIsSilence(t *testing.T) {
	svc := NewService(testServiceConfig("http://unused.invalid"))

	text, err := svc.Transcribe(context.Background(), "req-1", nil, "wav")
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcription for empty audio, got %q", text)
	}
}

func TestTranscribeCallsProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if model := r.FormValue("model"); model != "whisper-1" {
			t.Errorf("model field got %q", model)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello widget"}`))
	}))
	defer srv.Close()

	svc := NewService(testServiceConfig(srv.URL))

	text, err := svc.Transcribe(context.Background(), "req-2", []byte("RIFFdata"), "wav")
	if err != nil {
		t.Fatalf("Transcribe err: %v", err)
	}
	if text != "hello widget" {
		t.Fatalf("transcription got %q", text)
	}
}

func TestTranscribeQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota"}}`))
	}))
	defer srv.Close()

	svc := NewService(testServiceConfig(srv.URL))

	_, err := svc.Transcribe(context.Background(), "req-3", []byte("RIFFdata"), "wav")
	if err == nil {
		t.Fatal("expected error")
	}
	if !fault.IsQuota(err) {
		t.Fatalf("expected quota kind, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status got %d", apiErr.StatusCode)
	}
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte{0xff, 0xfb, 0x90, 0x00})
	}))
	defer srv.Close()

	svc := NewService(testServiceConfig(srv.URL))

	audio, mime, err := svc.Synthesize(context.Background(), "req-4", "hello there")
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if len(audio) != 4 {
		t.Fatalf("audio length got %d", len(audio))
	}
	if mime != "audio/mpeg" {
		t.Fatalf("mime got %q", mime)
	}
}

func TestSynthesizeServerErrorIsNetworkKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewService(testServiceConfig(srv.URL))

	_, _, err := svc.Synthesize(context.Background(), "req-5", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := fault.KindOf(err); kind != fault.KindNetwork {
		t.Fatalf("kind got %v want network", kind)
	}
}

func TestMissingCredentialsIsConfigKind(t *testing.T) {
	cfg := testServiceConfig("http://unused.invalid")
	cfg.APIKey = ""
	svc := NewService(cfg)

	_, err := svc.Transcribe(context.Background(), "req-6", []byte("RIFF"), "wav")
	if kind := fault.KindOf(err); kind != fault.KindConfig {
		t.Fatalf("kind got %v want config", kind)
	}
}
