// Package widget implements the client side of the voice chat widget: the
// connect/record/think state machine, the transcript, and the clients that
// talk to the backend and the media session.
package widget

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/voicelab/voice-widget/backend/internal/fault"
)

// Transcript messages for the guarded and failed paths. Every failure is
// visible in the chat panel; the widget never fails silently.
const (
	MessageTooManyRequests = "I'm getting a lot of requests right now. Please wait a moment and try again."
	MessageRequestFailed   = "Sorry, something went wrong handling that. Please try again."
)

// Defaults for the request gating and retry policy.
const (
	DefaultCooldown     = 5 * time.Second
	DefaultMaxRetries   = 2
	DefaultRetryBackoff = 3 * time.Second
)

var (
	ErrNotConnected     = errors.New("widget: not connected")
	ErrAlreadyConnected = errors.New("widget: already connected")
	ErrNotRecording     = errors.New("widget: not recording")
	ErrBusy             = errors.New("widget: controller is busy")
)

// AudioSource is the microphone capture stream. Start returns a channel of
// PCM chunks; the channel closes after Stop.
type AudioSource interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop() error
}

// Options tune one controller instance.
type Options struct {
	RoomName        string
	ParticipantName string

	// Cooldown blocks new recordings for this long after each dispatch.
	Cooldown time.Duration
	// MaxRetries bounds automatic retries on quota-exceeded results.
	MaxRetries int
	// RetryBackoff is the base backoff; attempt n waits n*RetryBackoff,
	// giving the 3s, 6s ladder with the default.
	RetryBackoff time.Duration

	// SampleRate/Channels/BitsPerSample describe the captured PCM for the
	// WAV container. Zero values default to 16kHz mono 16-bit.
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (o *Options) applyDefaults() {
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	if o.BitsPerSample <= 0 {
		o.BitsPerSample = 16
	}
}

// recordingSession aggregates one live capture: the accumulating buffer and
// the goroutine pumping chunks into the media session. At most one exists
// per controller.
type recordingSession struct {
	chunks [][]byte
	done   chan struct{}
}

// Controller drives the widget lifecycle:
// Disconnected → Connecting → {Idle ⇄ Recording, Idle ⇄ Thinking}.
type Controller struct {
	mu         sync.Mutex
	state      State
	opts       Options
	generation int // bumped on disconnect; stale async work checks it

	tokens     TokenClient
	media      MediaSession
	mic        AudioSource
	pipe       PipelineClient
	transcript *Transcript

	lastDispatch time.Time
	rec          *recordingSession

	now   func() time.Time
	sleep func(time.Duration)

	onState          func(State)
	onAssistantAudio func(dataURI string)
}

// NewController wires a controller. All collaborators are required.
func NewController(tokens TokenClient, media MediaSession, mic AudioSource, pipe PipelineClient, opts Options) *Controller {
	opts.applyDefaults()
	return &Controller{
		state:      StateDisconnected,
		opts:       opts,
		tokens:     tokens,
		media:      media,
		mic:        mic,
		pipe:       pipe,
		transcript: NewTranscript(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// OnStateChange registers a callback fired after every transition. Set it
// before Connect; it must not call back into the controller synchronously.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnAssistantAudio registers a callback receiving the assistant audio data
// URI for playback after each successful exchange.
func (c *Controller) OnAssistantAudio(fn func(dataURI string)) {
	c.mu.Lock()
	c.onAssistantAudio = fn
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the transcript store backing the chat panel.
func (c *Controller) Transcript() *Transcript {
	return c.transcript
}

// setState transitions and fires the callback outside the lock.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

// Connect issues a session credential and establishes the media session.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(StateConnecting)
	}

	cred, err := c.tokens.Issue(ctx, c.opts.RoomName, c.opts.ParticipantName)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("issue session credential: %w", err)
	}

	if err := c.media.Connect(ctx, cred.URL, cred.Token); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connect media session: %w", err)
	}

	c.setState(StateIdle)
	return nil
}

// StartRecording begins microphone capture. Allowed only from Idle and only
// outside the post-dispatch cooldown; during cooldown it appends an
// informational assistant message and records nothing.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateDisconnected, StateConnecting:
		c.mu.Unlock()
		return ErrNotConnected
	case StateRecording, StateThinking:
		c.mu.Unlock()
		return ErrBusy
	}

	if wait := c.cooldownRemainingLocked(); wait > 0 {
		c.mu.Unlock()
		secs := int(wait.Round(time.Second).Seconds())
		if secs < 1 {
			secs = 1
		}
		c.transcript.AppendAssistant(fmt.Sprintf("Please wait %d more second(s) before recording again.", secs))
		return nil
	}
	c.mu.Unlock()

	chunks, err := c.mic.Start(ctx)
	if err != nil {
		return fmt.Errorf("start microphone: %w", err)
	}

	rec := &recordingSession{done: make(chan struct{})}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.mic.Stop()
		return ErrBusy
	}
	c.rec = rec
	c.state = StateRecording
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(StateRecording)
	}

	go c.pump(rec, chunks)
	return nil
}

// pump buffers captured chunks and mirrors them into the media session for
// live listeners. It exits when the capture channel closes.
func (c *Controller) pump(rec *recordingSession, chunks <-chan []byte) {
	defer close(rec.done)
	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		rec.chunks = append(rec.chunks, chunk)
		if err := c.media.PublishAudio(chunk); err != nil {
			log.Printf("[widget] publish audio frame: %v", err)
		}
	}
}

// StopRecording tears the capture down synchronously, then flushes the
// buffered audio to the pipeline asynchronously. The controller passes
// through Idle during teardown and sits in Thinking until the pipeline
// settles.
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	if c.state != StateRecording || c.rec == nil {
		c.mu.Unlock()
		return ErrNotRecording
	}
	rec := c.rec
	c.rec = nil
	gen := c.generation
	c.mu.Unlock()

	if err := c.mic.Stop(); err != nil {
		log.Printf("[widget] stop microphone: %v", err)
	}
	<-rec.done

	c.setState(StateIdle)

	var pcm []byte
	for _, chunk := range rec.chunks {
		pcm = append(pcm, chunk...)
	}

	go c.dispatch(gen, pcm)
	return nil
}

// dispatch sends one utterance through the pipeline, retrying quota results
// with linear backoff. Runs off the caller's goroutine.
func (c *Controller) dispatch(gen int, pcm []byte) {
	if !c.enterThinking(gen) {
		return
	}

	// An empty buffer stays empty so the server short-circuits it as
	// silence instead of transcribing a bare container header.
	payload := ""
	if len(pcm) > 0 {
		wav := EncodeWAV(pcm, c.opts.SampleRate, c.opts.Channels, c.opts.BitsPerSample)
		payload = base64.StdEncoding.EncodeToString(wav)
	}
	audioDataURI := "data:audio/wav;base64," + payload

	c.mu.Lock()
	c.lastDispatch = c.now()
	c.mu.Unlock()

	var result *ChatResult
	var err error
	for attempt := 0; ; attempt++ {
		result, err = c.pipe.Process(context.Background(), audioDataURI)
		if err == nil || fault.KindOf(err) != fault.KindQuota {
			break
		}
		if attempt >= c.opts.MaxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * c.opts.RetryBackoff
		log.Printf("[widget] quota exceeded, retrying in %s (attempt %d/%d)", backoff, attempt+1, c.opts.MaxRetries)
		c.sleep(backoff)
		if c.stale(gen) {
			return
		}
	}

	if c.stale(gen) {
		// Controller moved on (disconnected); drop the late result.
		return
	}

	switch {
	case err == nil:
		if result.Transcription != "" {
			c.transcript.AppendUser(result.Transcription)
		}
		c.transcript.AppendAssistant(result.Text)
		if result.AudioDataURI != "" {
			c.mu.Lock()
			fn := c.onAssistantAudio
			c.mu.Unlock()
			if fn != nil {
				fn(result.AudioDataURI)
			}
		}
	case fault.KindOf(err) == fault.KindQuota:
		log.Printf("[widget] giving up after %d quota retries: %v", c.opts.MaxRetries, err)
		c.transcript.AppendAssistant(MessageTooManyRequests)
	default:
		log.Printf("[widget] pipeline request failed: %v", err)
		c.transcript.AppendAssistant(MessageRequestFailed)
	}

	c.leaveThinking(gen)
}

// enterThinking transitions Idle → Thinking unless the controller has moved
// on since the recording stopped.
func (c *Controller) enterThinking(gen int) bool {
	c.mu.Lock()
	if c.generation != gen || c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	c.state = StateThinking
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(StateThinking)
	}
	return true
}

// leaveThinking returns to Idle after the pipeline settles.
func (c *Controller) leaveThinking(gen int) {
	c.mu.Lock()
	if c.generation != gen || c.state != StateThinking {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(StateIdle)
	}
}

func (c *Controller) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

// CooldownRemaining reports how long until the next recording is allowed.
func (c *Controller) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldownRemainingLocked()
}

func (c *Controller) cooldownRemainingLocked() time.Duration {
	if c.lastDispatch.IsZero() {
		return 0
	}
	remaining := c.opts.Cooldown - c.now().Sub(c.lastDispatch)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Disconnect releases the media session from any state. An in-flight
// pipeline call runs to completion but its result is dropped.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	c.generation++
	c.lastDispatch = time.Time{}
	c.mu.Unlock()

	if rec != nil {
		if err := c.mic.Stop(); err != nil {
			log.Printf("[widget] stop microphone: %v", err)
		}
		<-rec.done
	}

	if err := c.media.Close(); err != nil {
		log.Printf("[widget] close media session: %v", err)
	}

	c.setState(StateDisconnected)
}
