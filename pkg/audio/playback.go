package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrPlaybackFatal is passed to the fatal callback when playback of the
// current queue is aborted after too many consecutive device failures.
var ErrPlaybackFatal = errors.New("audio: playback aborted after consecutive device failures")

// maxConsecutiveFailures is the number of back-to-back frame failures that
// aborts the remaining queue.
const maxConsecutiveFailures = 3

// PlaybackOption is a functional option for configuring a [PlaybackPipeline].
type PlaybackOption func(*PlaybackPipeline)

// WithPlaybackRate resamples every frame to rate before it is written to the
// sinks. Zero (the default) writes frames at their native rate.
func WithPlaybackRate(rate int) PlaybackOption {
	return func(p *PlaybackPipeline) { p.deviceRate = rate }
}

// PlaybackPipeline plays frames through the primary sink in strict arrival
// order, waiting out each frame's full playback duration before starting the
// next, so bursts of synthesis chunks are heard in the order produced.
//
// Every frame is simultaneously written to the uplink sink: whatever the
// local listener hears is also what the remote counterpart receives. The
// uplink duplication — not a shared device — is how synthesized speech
// reaches the far side.
//
// When the queue empties after playing at least one frame, the drained
// callback fires. A frame that fails on the device is logged and skipped;
// three consecutive failures abort the remaining queue and fire the fatal
// callback instead (the pipeline itself stays usable for later turns).
type PlaybackPipeline struct {
	primary    Sink
	uplink     Sink
	deviceRate int

	mu       sync.Mutex
	queue    []Frame
	inFlight bool
	started  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	onDrained func()
	onFatal   func(error)
}

// NewPlayback creates a playback pipeline over the listener-audible primary
// sink and the remote-audible uplink sink. uplink may be nil when no remote
// path exists (tests, local-only operation).
func NewPlayback(primary, uplink Sink, opts ...PlaybackOption) *PlaybackPipeline {
	p := &PlaybackPipeline{
		primary: primary,
		uplink:  uplink,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// OnDrained registers the callback invoked when the queue empties after
// playback. Must be set before Start.
func (p *PlaybackPipeline) OnDrained(fn func()) { p.onDrained = fn }

// OnFatal registers the callback invoked when a queue is aborted. Must be
// set before Start.
func (p *PlaybackPipeline) OnFatal(fn func(error)) { p.onFatal = fn }

// Start launches the playback loop. May be called once.
func (p *PlaybackPipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("audio: playback pipeline already started")
	}
	p.started = true
	p.wg.Add(1)
	go p.run()
	return nil
}

// Enqueue appends frame to the FIFO. Frames enqueued after Stop are dropped.
func (p *PlaybackPipeline) Enqueue(frame Frame) {
	select {
	case <-p.done:
		return
	default:
	}

	p.mu.Lock()
	p.queue = append(p.queue, frame)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Idle reports whether no frame is queued or currently sounding. Once the
// producer has stopped enqueueing, Idle stays true after the drained callback
// fires.
func (p *PlaybackPipeline) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) == 0 && !p.inFlight
}

// Stop halts the loop and discards any queued frames. Idempotent.
func (p *PlaybackPipeline) Stop() error {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return nil
	default:
		close(p.done)
	}
	p.queue = nil
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *PlaybackPipeline) run() {
	defer p.wg.Done()

	failures := 0
	played := false

	for {
		frame, ok := p.dequeue()
		if !ok {
			if played {
				played = false
				failures = 0
				if p.onDrained != nil {
					p.onDrained()
				}
			}
			select {
			case <-p.done:
				return
			case <-p.wake:
				continue
			}
		}

		played = true
		if err := p.play(frame); err != nil {
			failures++
			slog.Warn("playback: frame failed, skipping",
				"consecutive_failures", failures,
				"frame_duration", frame.Duration(),
				"error", err,
			)
			if failures >= maxConsecutiveFailures {
				p.abort()
				failures = 0
				played = false
				continue
			}
			continue
		}
		failures = 0

		// Hold until the frame has finished sounding so the next frame never
		// overlaps it.
		select {
		case <-p.done:
			return
		case <-time.After(frame.Duration()):
		}
	}
}

// play writes frame to both sinks. The uplink write is attempted even when
// the primary fails; either failure marks the frame as failed.
func (p *PlaybackPipeline) play(frame Frame) error {
	if p.deviceRate > 0 {
		frame = ResampleFrame(frame, p.deviceRate)
	}

	primaryErr := p.primary.Write(frame)

	var uplinkErr error
	if p.uplink != nil {
		uplinkErr = p.uplink.Write(frame)
	}

	return errors.Join(primaryErr, uplinkErr)
}

func (p *PlaybackPipeline) dequeue() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		p.inFlight = false
		return Frame{}, false
	}
	frame := p.queue[0]
	p.queue = p.queue[1:]
	p.inFlight = true
	return frame, true
}

// abort discards the remaining queue and reports the failure downstream.
func (p *PlaybackPipeline) abort() {
	p.mu.Lock()
	dropped := len(p.queue)
	p.queue = nil
	p.inFlight = false
	p.mu.Unlock()

	slog.Error("playback: aborting queue", "dropped_frames", dropped)
	if p.onFatal != nil {
		p.onFatal(ErrPlaybackFatal)
	}
}
