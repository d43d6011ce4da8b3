package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicelab/voice-widget/backend/internal/fault"
	"github.com/voicelab/voice-widget/backend/internal/model/chat"
)

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) Issue(_ context.Context, _, _ string) (*Credential, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Credential{Token: "jwt", URL: "wss://media.example", ExpiresIn: 600}, nil
}

type fakeMedia struct {
	mu         sync.Mutex
	connectErr error
	published  [][]byte
	closed     bool
}

func (f *fakeMedia) Connect(_ context.Context, _, _ string) error {
	return f.connectErr
}

func (f *fakeMedia) PublishAudio(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, frame)
	return nil
}

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMedia) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeMic struct {
	mu sync.Mutex
	ch chan []byte
}

func (f *fakeMic) Start(_ context.Context) (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = make(chan []byte, 16)
	return f.ch, nil
}

func (f *fakeMic) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		close(f.ch)
		f.ch = nil
	}
	return nil
}

func (f *fakeMic) emit(chunk []byte) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	ch <- chunk
}

type fakePipe struct {
	mu      sync.Mutex
	results []*ChatResult
	errs    []error
	uris    []string
	block   chan struct{} // when set, Process waits on it
}

func (f *fakePipe) Process(_ context.Context, audioDataURI string) (*ChatResult, error) {
	f.mu.Lock()
	f.uris = append(f.uris, audioDataURI)
	call := len(f.uris) - 1
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	if err != nil {
		return nil, err
	}
	if call < len(f.results) {
		return f.results[call], nil
	}
	return &ChatResult{Text: "ok"}, nil
}

func (f *fakePipe) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uris)
}

type harness struct {
	ctrl   *Controller
	tokens *fakeTokens
	media  *fakeMedia
	mic    *fakeMic
	pipe   *fakePipe
	states chan State
	sleeps *[]time.Duration
}

func newHarness(pipe *fakePipe) *harness {
	tokens := &fakeTokens{}
	media := &fakeMedia{}
	mic := &fakeMic{}
	if pipe == nil {
		pipe = &fakePipe{}
	}

	ctrl := NewController(tokens, media, mic, pipe, Options{
		RoomName:        "landing",
		ParticipantName: "visitor_1",
	})

	var sleeps []time.Duration
	ctrl.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	states := make(chan State, 32)
	ctrl.OnStateChange(func(s State) { states <- s })

	return &harness{ctrl: ctrl, tokens: tokens, media: media, mic: mic, pipe: pipe, states: states, sleeps: &sleeps}
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-h.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v (current %v)", want, h.ctrl.State())
		}
	}
}

func (h *harness) runExchange(t *testing.T, chunks ...[]byte) {
	t.Helper()
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	h.waitState(t, StateRecording)
	for _, chunk := range chunks {
		h.mic.emit(chunk)
	}
	if err := h.ctrl.StopRecording(); err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	h.waitState(t, StateThinking)
	h.waitState(t, StateIdle)
}

func TestConnectSuccess(t *testing.T) {
	h := newHarness(nil)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if h.ctrl.State() != StateIdle {
		t.Fatalf("state got %v want idle", h.ctrl.State())
	}
}

func TestConnectTokenFailure(t *testing.T) {
	h := newHarness(nil)
	h.tokens.err = errors.New("issuer down")

	if err := h.ctrl.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.ctrl.State() != StateDisconnected {
		t.Fatalf("state got %v want disconnected", h.ctrl.State())
	}
}

func TestConnectMediaFailure(t *testing.T) {
	h := newHarness(nil)
	h.media.connectErr = errors.New("dial refused")

	if err := h.ctrl.Connect(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if h.ctrl.State() != StateDisconnected {
		t.Fatalf("state got %v want disconnected", h.ctrl.State())
	}
}

func TestStartRecordingRequiresConnection(t *testing.T) {
	h := newHarness(nil)

	if err := h.ctrl.StartRecording(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err got %v want ErrNotConnected", err)
	}
}

func TestFullExchangeTranscriptOrdering(t *testing.T) {
	pipe := &fakePipe{results: []*ChatResult{{
		Transcription: "how much is it",
		Text:          "Ten dollars a month.",
		AudioDataURI:  "data:audio/mpeg;base64,AAAA",
	}}}
	h := newHarness(pipe)

	var audioURIs []string
	var audioMu sync.Mutex
	h.ctrl.OnAssistantAudio(func(uri string) {
		audioMu.Lock()
		audioURIs = append(audioURIs, uri)
		audioMu.Unlock()
	})

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1, 2}, []byte{3, 4})

	messages := h.ctrl.Transcript().Messages()
	if len(messages) != 2 {
		t.Fatalf("transcript length got %d want 2", len(messages))
	}
	if messages[0].Role != chat.RoleUser || messages[0].Text != "how much is it" {
		t.Fatalf("first message wrong: %+v", messages[0])
	}
	if messages[1].Role != chat.RoleAssistant || messages[1].Text != "Ten dollars a month." {
		t.Fatalf("second message wrong: %+v", messages[1])
	}

	audioMu.Lock()
	defer audioMu.Unlock()
	if len(audioURIs) != 1 || audioURIs[0] != "data:audio/mpeg;base64,AAAA" {
		t.Fatalf("assistant audio callback got %v", audioURIs)
	}

	if h.media.publishedCount() != 2 {
		t.Fatalf("published frames got %d want 2", h.media.publishedCount())
	}
}

func TestDispatchSendsWAVDataURI(t *testing.T) {
	pipe := &fakePipe{}
	h := newHarness(pipe)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1, 2, 3, 4})

	if pipe.callCount() != 1 {
		t.Fatalf("pipeline calls got %d want 1", pipe.callCount())
	}
	if !strings.HasPrefix(pipe.uris[0], "data:audio/wav;base64,") {
		t.Fatalf("dispatched uri got %q", pipe.uris[0])
	}
	if pipe.uris[0] == "data:audio/wav;base64," {
		t.Fatal("expected a non-empty WAV payload")
	}
}

func TestEmptyBufferDispatchesEmptyPayload(t *testing.T) {
	pipe := &fakePipe{results: []*ChatResult{{Text: "fallback"}}}
	h := newHarness(pipe)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t) // no chunks captured

	if pipe.callCount() != 1 {
		t.Fatalf("pipeline calls got %d want 1", pipe.callCount())
	}
	if pipe.uris[0] != "data:audio/wav;base64," {
		t.Fatalf("empty buffer should dispatch an empty payload, got %q", pipe.uris[0])
	}
}

func TestCooldownBlocksRecordingWithMessage(t *testing.T) {
	h := newHarness(nil)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1})

	before := h.ctrl.Transcript().Len()
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	if h.ctrl.State() != StateIdle {
		t.Fatalf("cooldown attempt must not change state, got %v", h.ctrl.State())
	}

	messages := h.ctrl.Transcript().Messages()
	if len(messages) != before+1 {
		t.Fatalf("expected one informational message, transcript grew by %d", len(messages)-before)
	}
	last := messages[len(messages)-1]
	if last.Role != chat.RoleAssistant || !strings.Contains(last.Text, "wait") {
		t.Fatalf("unexpected cooldown message: %+v", last)
	}
	if h.pipe.callCount() != 1 {
		t.Fatalf("cooldown attempt must not dispatch, calls got %d", h.pipe.callCount())
	}
}

func TestCooldownExpiresAfterWindow(t *testing.T) {
	h := newHarness(nil)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1})

	current := time.Now().Add(DefaultCooldown + time.Second)
	h.ctrl.now = func() time.Time { return current }

	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	h.waitState(t, StateRecording)
	if h.ctrl.State() != StateRecording {
		t.Fatalf("state got %v want recording", h.ctrl.State())
	}
	if err := h.ctrl.StopRecording(); err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	h.waitState(t, StateIdle)
}

func TestQuotaRetriesWithLinearBackoff(t *testing.T) {
	quota := fault.New(fault.KindQuota, "saturated")
	pipe := &fakePipe{errs: []error{quota, quota, quota}}
	h := newHarness(pipe)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1})

	if pipe.callCount() != 3 {
		t.Fatalf("pipeline calls got %d want 3 (initial + 2 retries)", pipe.callCount())
	}

	sleeps := *h.sleeps
	if len(sleeps) != 2 || sleeps[0] != 3*time.Second || sleeps[1] != 6*time.Second {
		t.Fatalf("backoff sleeps got %v want [3s 6s]", sleeps)
	}

	messages := h.ctrl.Transcript().Messages()
	last := messages[len(messages)-1]
	if last.Role != chat.RoleAssistant || last.Text != MessageTooManyRequests {
		t.Fatalf("expected final too-many-requests message, got %+v", last)
	}
}

func TestQuotaRetrySucceedsSecondAttempt(t *testing.T) {
	quota := fault.New(fault.KindQuota, "saturated")
	pipe := &fakePipe{
		errs:    []error{quota, nil},
		results: []*ChatResult{nil, {Transcription: "hello", Text: "Hi!"}},
	}
	h := newHarness(pipe)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1})

	if pipe.callCount() != 2 {
		t.Fatalf("pipeline calls got %d want 2", pipe.callCount())
	}
	messages := h.ctrl.Transcript().Messages()
	if len(messages) != 2 || messages[1].Text != "Hi!" {
		t.Fatalf("unexpected transcript after retry success: %+v", messages)
	}
}

func TestGenericFailureAppendsVisibleMessage(t *testing.T) {
	pipe := &fakePipe{errs: []error{errors.New("backend exploded")}}
	h := newHarness(pipe)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	h.runExchange(t, []byte{1})

	messages := h.ctrl.Transcript().Messages()
	last := messages[len(messages)-1]
	if last.Text != MessageRequestFailed {
		t.Fatalf("expected visible failure message, got %+v", last)
	}
	if len(*h.sleeps) != 0 {
		t.Fatal("generic failures must not trigger backoff retries")
	}
}

func TestDisconnectDropsInFlightResult(t *testing.T) {
	block := make(chan struct{})
	pipe := &fakePipe{
		block:   block,
		results: []*ChatResult{{Transcription: "late", Text: "too late"}},
	}
	h := newHarness(pipe)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	h.waitState(t, StateRecording)
	h.mic.emit([]byte{1})
	if err := h.ctrl.StopRecording(); err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	h.waitState(t, StateThinking)

	h.ctrl.Disconnect()
	h.waitState(t, StateDisconnected)
	close(block) // let the in-flight call finish now

	time.Sleep(50 * time.Millisecond)
	if h.ctrl.Transcript().Len() != 0 {
		t.Fatalf("late result must be dropped, transcript: %+v", h.ctrl.Transcript().Messages())
	}
	if !h.media.closed {
		t.Fatal("media session must be closed on disconnect")
	}
	if h.ctrl.State() != StateDisconnected {
		t.Fatalf("state got %v want disconnected", h.ctrl.State())
	}
}

func TestStopRecordingWhenNotRecording(t *testing.T) {
	h := newHarness(nil)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := h.ctrl.StopRecording(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("err got %v want ErrNotRecording", err)
	}
}

func TestSecondStartRecordingIsRejected(t *testing.T) {
	h := newHarness(nil)

	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect err: %v", err)
	}
	if err := h.ctrl.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording err: %v", err)
	}
	h.waitState(t, StateRecording)

	if err := h.ctrl.StartRecording(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("err got %v want ErrBusy", err)
	}

	if err := h.ctrl.StopRecording(); err != nil {
		t.Fatalf("StopRecording err: %v", err)
	}
	h.waitState(t, StateIdle)
}
