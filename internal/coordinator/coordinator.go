// Package coordinator implements the turn-taking state machine that drives a
// spoken conversation: it accumulates interviewer transcripts, detects the end
// of a question by silence, obtains a reply, and streams the synthesized
// answer to playback while holding the capture gate closed so the system never
// transcribes its own voice.
//
// All state transitions happen on a single goroutine fed by a serialized
// event channel; collaborator callbacks only post events and never mutate
// coordinator state directly.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/parley-voice/parley/internal/history"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/transcript"
	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/reply"
	"github.com/parley-voice/parley/pkg/speech"
)

const (
	// DefaultSilenceTimeout is how long the interviewer must stay quiet after
	// their last transcript before the buffered text is treated as a complete
	// question.
	DefaultSilenceTimeout = 6 * time.Second

	// DefaultCooldown is how long the capture gate stays closed after an
	// utterance finishes playing.
	DefaultCooldown = 15 * time.Second

	// DefaultWatchdogTimeout is how long Listening may pass without a single
	// transcript before the no-audio prompt is spoken.
	DefaultWatchdogTimeout = 15 * time.Second

	// DefaultRepeatPrompt is spoken when the interviewer repeats the previous
	// question instead of asking a new one.
	DefaultRepeatPrompt = "Could you please repeat the question?"

	// DefaultNoAudioPrompt is spoken when the no-audio watchdog fires.
	DefaultNoAudioPrompt = "I didn't catch that, could you repeat?"
)

// ErrAlreadySpeaking reports a speak request while an utterance is still in
// flight. It is logged at warn and otherwise treated as a no-op.
var ErrAlreadySpeaking = errors.New("coordinator: speak requested while already speaking")

// Transcriber is the transcription-client surface the coordinator consumes.
type Transcriber interface {
	Connect(ctx context.Context) error
	SendAudio(frame audio.Frame) error
	OnTranscript(fn func(speech.TranscriptEvent))
	OnError(fn func(error))
	Close() error
}

// Synthesizer is the synthesis-client surface the coordinator consumes.
type Synthesizer interface {
	Connect(ctx context.Context) error
	Speak(text string) error
	OnAudioChunk(fn func(audio.Frame))
	OnTurnComplete(fn func())
	OnError(fn func(error))
	Close() error
}

// Capture is the capture-pipeline surface the coordinator consumes.
type Capture interface {
	Start(onFrame func(audio.Frame)) error
	Stop() error
}

// Playback is the playback-pipeline surface the coordinator consumes. Idle
// is consulted when the synthesis stream ends: it must report true only once
// every enqueued frame has finished sounding, so the coordinator never infers
// queue state from event arrival order.
type Playback interface {
	Start() error
	Enqueue(frame audio.Frame)
	Idle() bool
	OnDrained(fn func())
	OnFatal(fn func(error))
	Stop() error
}

// Compile-time assertions that the concrete collaborators satisfy the
// consumer-side interfaces.
var (
	_ Transcriber = (*speech.Transcriber)(nil)
	_ Synthesizer = (*speech.Synthesizer)(nil)
	_ Capture     = (*audio.CapturePipeline)(nil)
	_ Playback    = (*audio.PlaybackPipeline)(nil)
)

// Option is a functional option for configuring a Coordinator.
type Option func(*Coordinator)

// WithSilenceTimeout overrides [DefaultSilenceTimeout].
func WithSilenceTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.silenceTimeout = d }
}

// WithCooldown overrides [DefaultCooldown].
func WithCooldown(d time.Duration) Option {
	return func(c *Coordinator) { c.cooldown = d }
}

// WithWatchdogTimeout overrides [DefaultWatchdogTimeout].
func WithWatchdogTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.watchdogTimeout = d }
}

// WithRepeatPrompt replaces the fixed utterance spoken on a duplicate question.
func WithRepeatPrompt(text string) Option {
	return func(c *Coordinator) { c.repeatPrompt = text }
}

// WithNoAudioPrompt replaces the fixed utterance spoken when the watchdog fires.
func WithNoAudioPrompt(text string) Option {
	return func(c *Coordinator) { c.noAudioPrompt = text }
}

// WithHistory records every completed turn to the given store. Store failures
// are logged and never interrupt the conversation.
func WithHistory(store history.Store) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithMetrics overrides the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator owns conversation-level state: the transcript buffer, the last
// question asked, and the silence/cooldown/watchdog timers. It is safe for
// concurrent use; Start and Stop may be called from any goroutine.
type Coordinator struct {
	transcriber Transcriber
	synthesizer Synthesizer
	capture     Capture
	playback    Playback
	gate        *audio.Gate
	generator   reply.Generator
	store       history.Store
	metrics     *observe.Metrics

	silenceTimeout  time.Duration
	cooldown        time.Duration
	watchdogTimeout time.Duration
	repeatPrompt    string
	noAudioPrompt   string

	onStateChange   func(from, to State)
	onTerminalError func(error)

	state  atomic.Int32
	events chan event

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Conversation state below is owned exclusively by the run loop.
	buf          transcript.Buffer
	lastQuestion string

	silenceTimer  *time.Timer
	watchdogTimer *time.Timer
	cooldownTimer *time.Timer

	// watchdogEnabled gates re-arming of the no-audio watchdog: once fired it
	// stays disabled until a full cooldown completes.
	watchdogEnabled bool

	speaking    bool
	utterance   string
	speechStart time.Time
	turnStart   time.Time
	turnDone    bool

	// turnCtx/turnSpan cover one question-to-answer cycle; the span ends when
	// the cycle reaches cooldown.
	turnCtx  context.Context
	turnSpan trace.Span
}

type eventKind uint8

const (
	evTranscript eventKind = iota
	evTurnComplete
	evDrained
	evPlaybackFatal
	evReplyReady
	evReplyFailed
	evTerminalError
)

type event struct {
	kind eventKind
	text string
	at   time.Time
	err  error
}

// New constructs a Coordinator over the given collaborators. The gate must be
// the same instance the capture pipeline reads. Options are applied after
// defaults.
func New(t Transcriber, s Synthesizer, capture Capture, playback Playback, gate *audio.Gate, gen reply.Generator, opts ...Option) *Coordinator {
	c := &Coordinator{
		transcriber:     t,
		synthesizer:     s,
		capture:         capture,
		playback:        playback,
		gate:            gate,
		generator:       gen,
		metrics:         observe.DefaultMetrics(),
		silenceTimeout:  DefaultSilenceTimeout,
		cooldown:        DefaultCooldown,
		watchdogTimeout: DefaultWatchdogTimeout,
		repeatPrompt:    DefaultRepeatPrompt,
		noAudioPrompt:   DefaultNoAudioPrompt,
		events:          make(chan event, 64),
		watchdogEnabled: true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnStateChange registers a hook invoked on every state transition, from the
// run loop. Register before Start.
func (c *Coordinator) OnStateChange(fn func(from, to State)) { c.onStateChange = fn }

// OnTerminalError registers a hook invoked when a streaming client exhausts
// its reconnect budget. The host decides whether to restart the coordinator;
// the coordinator itself keeps running. Register before Start.
func (c *Coordinator) OnTerminalError(fn func(error)) { c.onTerminalError = fn }

// State reports the current conversation phase.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Start connects both streaming clients, starts both pipelines, opens the
// capture gate and begins Listening. It returns once the conversation loop is
// running.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator: already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)

	c.transcriber.OnTranscript(func(evt speech.TranscriptEvent) {
		c.metrics.RecordTranscript(ctx, evt.Final)
		if strings.TrimSpace(evt.Text) == "" {
			return
		}
		c.post(ctx, event{kind: evTranscript, text: evt.Text, at: evt.Timestamp})
	})
	c.transcriber.OnError(func(err error) { c.postClientError(ctx, err) })
	c.synthesizer.OnError(func(err error) { c.postClientError(ctx, err) })

	// Audio chunks bypass the event loop entirely: they go straight to
	// playback so the first chunk is audible before the reply finishes
	// streaming. End-of-turn decisions consult playback.Idle rather than
	// per-chunk notifications, whose arrival order is not guaranteed.
	c.synthesizer.OnAudioChunk(func(frame audio.Frame) {
		c.playback.Enqueue(frame)
	})
	c.synthesizer.OnTurnComplete(func() { c.post(ctx, event{kind: evTurnComplete}) })

	c.playback.OnDrained(func() { c.post(ctx, event{kind: evDrained}) })
	c.playback.OnFatal(func(err error) { c.post(ctx, event{kind: evPlaybackFatal, err: err}) })

	if err := c.transcriber.Connect(ctx); err != nil {
		return fmt.Errorf("coordinator: connect transcription: %w", err)
	}
	if err := c.synthesizer.Connect(ctx); err != nil {
		c.transcriber.Close()
		return fmt.Errorf("coordinator: connect synthesis: %w", err)
	}
	if err := c.playback.Start(); err != nil {
		c.teardownClients()
		return fmt.Errorf("coordinator: start playback: %w", err)
	}
	if err := c.capture.Start(c.forwardFrame); err != nil {
		c.playback.Stop()
		c.teardownClients()
		return fmt.Errorf("coordinator: start capture: %w", err)
	}

	c.silenceTimer = newStoppedTimer()
	c.watchdogTimer = newStoppedTimer()
	c.cooldownTimer = newStoppedTimer()

	c.gate.Open()
	c.setState(StateListening)
	if c.watchdogEnabled {
		resetTimer(c.watchdogTimer, c.watchdogTimeout)
	}

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop cancels all timers, stops both pipelines and closes both streaming
// clients. It may be called from any state and is idempotent.
func (c *Coordinator) Stop() error {
	if !c.started.Load() || c.cancel == nil {
		return nil
	}
	c.cancel()
	c.wg.Wait()

	err := errors.Join(
		c.capture.Stop(),
		c.playback.Stop(),
		c.teardownClients(),
	)
	c.setState(StateIdle)
	return err
}

// forwardFrame pushes a captured frame to the transcription client. The gate
// has already suppressed frames during Speaking/Cooldown by the time this runs.
func (c *Coordinator) forwardFrame(frame audio.Frame) {
	if err := c.transcriber.SendAudio(frame); err != nil {
		slog.Warn("coordinator: dropping captured frame", "error", err)
	}
}

func (c *Coordinator) teardownClients() error {
	return errors.Join(c.transcriber.Close(), c.synthesizer.Close())
}

func (c *Coordinator) postClientError(ctx context.Context, err error) {
	if errors.Is(err, speech.ErrRetriesExhausted) {
		c.post(ctx, event{kind: evTerminalError, err: err})
		return
	}
	slog.Warn("coordinator: speech service error", "error", err)
}

func (c *Coordinator) post(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *Coordinator) setState(next State) {
	prev := State(c.state.Swap(int32(next)))
	if prev == next {
		return
	}
	slog.Debug("coordinator: state change", "from", prev, "to", next)
	c.metrics.RecordStateTransition(context.Background(), prev.String(), next.String())
	if c.onStateChange != nil {
		c.onStateChange(prev, next)
	}
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	stopTimer(t)
	return t
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
