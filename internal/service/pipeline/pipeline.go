// Package pipeline sequences the three speech stages behind POST /api/chat:
// transcription, reply generation and speech synthesis. Each stage fails
// independently; a later stage never discards earlier results.
package pipeline

import (
	"context"
	"encoding/base64"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/voicelab/voice-widget/backend/internal/fault"
)

// Canned assistant replies for the degenerate-but-valid outcomes.
const (
	FallbackUnintelligible = "Sorry, I couldn't make out what you said. Could you try again, a little closer to the microphone?"
	FallbackNoReply        = "I'm not sure how to answer that one. Mind rephrasing?"
)

const audioDataURIPrefix = "data:audio/"

// Transcriber turns captured audio into text. Empty audio or silence must
// yield an empty string, not an error.
type Transcriber interface {
	Transcribe(ctx context.Context, requestID string, audio []byte, format string) (string, error)
}

// Responder produces the assistant reply for a transcribed utterance.
type Responder interface {
	Respond(ctx context.Context, requestID, userMessage string) (string, error)
}

// Synthesizer renders reply text to audio, returning the bytes and MIME type.
type Synthesizer interface {
	Synthesize(ctx context.Context, requestID, text string) ([]byte, string, error)
}

// Result is the outcome of one full pipeline run. ResponseAudioDataURI is
// empty when synthesis was skipped or degraded.
type Result struct {
	Transcription        string
	ResponseText         string
	ResponseAudioDataURI string
}

// Orchestrator runs the three stages in order.
type Orchestrator struct {
	transcriber Transcriber
	responder   Responder
	synthesizer Synthesizer
}

// New wires the orchestrator. Any collaborator may be nil when its provider
// is unconfigured; the affected stage then fails with a config error.
func New(transcriber Transcriber, responder Responder, synthesizer Synthesizer) *Orchestrator {
	return &Orchestrator{
		transcriber: transcriber,
		responder:   responder,
		synthesizer: synthesizer,
	}
}

// Process runs transcription, generation and synthesis for one utterance.
//
// Degenerate outcomes are not errors: silence short-circuits with
// FallbackUnintelligible and no audio; an empty generated reply returns
// FallbackNoReply and no audio; a synthesis failure degrades to text-only.
func (o *Orchestrator) Process(ctx context.Context, audioDataURI string) (*Result, error) {
	audio, format, err := decodeAudioDataURI(audioDataURI)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()

	if o.transcriber == nil {
		return nil, fault.Config("transcription provider not configured")
	}

	transcription, err := o.transcriber.Transcribe(ctx, requestID, audio, format)
	if err != nil {
		return nil, stageError("transcribe", requestID, err)
	}

	transcription = strings.TrimSpace(transcription)
	if transcription == "" {
		log.Printf("[pipeline] request=%s silence detected, short-circuiting", requestID)
		return &Result{
			Transcription: "",
			ResponseText:  FallbackUnintelligible,
		}, nil
	}

	if o.responder == nil {
		return nil, fault.Config("response generation not configured")
	}

	replyText, err := o.responder.Respond(ctx, requestID, transcription)
	if err != nil {
		return nil, stageError("respond", requestID, err)
	}

	replyText = strings.TrimSpace(replyText)
	if replyText == "" {
		log.Printf("[pipeline] request=%s empty reply, skipping synthesis", requestID)
		return &Result{
			Transcription: transcription,
			ResponseText:  FallbackNoReply,
		}, nil
	}

	result := &Result{
		Transcription: transcription,
		ResponseText:  replyText,
	}

	if o.synthesizer == nil {
		log.Printf("[pipeline] request=%s no synthesizer configured, returning text only", requestID)
		return result, nil
	}

	replyAudio, mimeType, err := o.synthesizer.Synthesize(ctx, requestID, replyText)
	if err != nil {
		// Text chat stays usable even when voice synthesis is down.
		log.Printf("[pipeline] request=%s synthesis failed, degrading to text: %v", requestID, err)
		return result, nil
	}

	result.ResponseAudioDataURI = encodeAudioDataURI(replyAudio, mimeType)
	return result, nil
}

// stageError maps a stage failure onto the caller-visible taxonomy. Quota
// conditions surface as their own class so callers back off instead of
// showing a generic error.
func stageError(stage, requestID string, err error) error {
	kind := fault.KindOf(err)
	log.Printf("[pipeline] request=%s stage=%s failed kind=%s: %v", requestID, stage, kind, err)

	switch kind {
	case fault.KindQuota:
		return fault.Wrap(fault.KindQuota, stage+" provider quota exceeded", err)
	case fault.KindNetwork:
		return fault.Wrap(fault.KindNetwork, stage+" provider unreachable", err)
	case fault.KindConfig:
		return fault.Wrap(fault.KindConfig, stage+" provider misconfigured", err)
	default:
		return fault.Wrap(fault.KindUnknown, stage+" failed", err)
	}
}

// decodeAudioDataURI validates and unpacks a data:audio/... base64 URI.
// An empty payload is valid and decodes to zero bytes (silence).
func decodeAudioDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, audioDataURIPrefix) {
		return nil, "", fault.Validation("audioDataUri must be a data URI with an audio MIME type")
	}

	rest := uri[len("data:"):]
	sep := strings.Index(rest, ",")
	if sep < 0 {
		return nil, "", fault.Validation("audioDataUri is missing its payload separator")
	}

	header, payload := rest[:sep], rest[sep+1:]
	if !strings.HasSuffix(header, ";base64") {
		return nil, "", fault.Validation("audioDataUri payload must be base64-encoded")
	}

	mimeType := strings.TrimSuffix(header, ";base64")
	format := "wav"
	if idx := strings.Index(mimeType, "/"); idx >= 0 {
		if sub := mimeType[idx+1:]; sub != "" {
			// audio/mpeg payloads carry mp3 frames; everything else maps 1:1.
			if sub == "mpeg" {
				format = "mp3"
			} else {
				format = sub
			}
		}
	}

	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fault.Wrap(fault.KindValidation, "audioDataUri payload is not valid base64", err)
	}

	return audio, format, nil
}

func encodeAudioDataURI(audio []byte, mimeType string) string {
	if len(audio) == 0 {
		return ""
	}
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(audio)
}
