package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Capture pipeline defaults.
const (
	// DefaultFrameDuration is the amount of audio accumulated before a frame
	// is sliced off and delivered downstream.
	DefaultFrameDuration = 2 * time.Second

	// DefaultSilenceThreshold is the peak-amplitude floor (fraction of full
	// scale) below which a raw block is treated as pure silence and dropped
	// before accumulation.
	DefaultSilenceThreshold = 0.001
)

// CaptureOption is a functional option for configuring a [CapturePipeline].
type CaptureOption func(*CapturePipeline)

// WithFrameDuration sets the duration of delivered frames. Default 2s.
func WithFrameDuration(d time.Duration) CaptureOption {
	return func(p *CapturePipeline) { p.frameDuration = d }
}

// WithSilenceThreshold sets the peak-amplitude silence floor as a fraction
// of full scale. Default 0.001.
func WithSilenceThreshold(threshold float64) CaptureOption {
	return func(p *CapturePipeline) { p.silenceThreshold = threshold }
}

// CapturePipeline reads raw sample blocks from a [Source], filters out
// silence, accumulates the remainder into fixed-duration frames, and delivers
// each completed frame to the consumer callback.
//
// Delivery is suppressed entirely while the shared [Gate] is closed: blocks
// arriving during that window are dropped, not buffered, which is the primary
// guard against the system transcribing its own speech.
type CapturePipeline struct {
	source           Source
	gate             *Gate
	frameDuration    time.Duration
	silenceThreshold float64

	mu      sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewCapture creates a capture pipeline over source, gated by gate.
func NewCapture(source Source, gate *Gate, opts ...CaptureOption) *CapturePipeline {
	p := &CapturePipeline{
		source:           source,
		gate:             gate,
		frameDuration:    DefaultFrameDuration,
		silenceThreshold: DefaultSilenceThreshold,
		done:             make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start begins reading from the source and delivering completed frames to
// onFrame. onFrame is invoked from a single internal goroutine, always in
// capture order. Start may be called once.
func (p *CapturePipeline) Start(onFrame func(Frame)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("audio: capture pipeline already started")
	}
	p.started = true

	rate := p.source.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("audio: source reports invalid sample rate %d", rate)
	}
	frameBytes := int(int64(rate) * 2 * int64(p.frameDuration) / int64(time.Second))
	if frameBytes < 2 {
		return fmt.Errorf("audio: frame duration %v too short for rate %d", p.frameDuration, rate)
	}

	blocks, err := p.source.Start()
	if err != nil {
		return fmt.Errorf("audio: start source: %w", err)
	}

	p.wg.Add(1)
	go p.run(blocks, rate, frameBytes, onFrame)
	return nil
}

func (p *CapturePipeline) run(blocks <-chan []byte, rate, frameBytes int, onFrame func(Frame)) {
	defer p.wg.Done()

	var (
		buf       []byte
		delivered int64 // total samples delivered, for frame timestamps
		dropped   int64 // blocks dropped by the gate
		silent    int64 // blocks dropped as silence
	)

	for {
		select {
		case <-p.done:
			return
		case block, ok := <-blocks:
			if !ok {
				return
			}
			// Silence test runs on the raw block, before accumulation, so
			// pure-silence audio never reaches the transcription stream.
			if peak(block) < p.silenceThreshold {
				silent++
				continue
			}
			if !p.gate.IsOpen() {
				dropped++
				continue
			}
			buf = append(buf, block...)
			for len(buf) >= frameBytes {
				frame := Frame{
					Data:       append([]byte(nil), buf[:frameBytes]...),
					SampleRate: rate,
					Timestamp:  time.Duration(delivered) * time.Second / time.Duration(rate),
				}
				buf = buf[frameBytes:]
				delivered += int64(frame.Samples())
				onFrame(frame)
			}
		}
	}
}

// Stop releases the source and discards any partially accumulated buffer.
// Idempotent; safe to call before Start.
func (p *CapturePipeline) Stop() error {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return nil
	default:
		close(p.done)
	}
	p.mu.Unlock()

	err := p.source.Stop()
	p.wg.Wait()
	if err != nil {
		slog.Warn("capture pipeline: source stop failed", "error", err)
		return fmt.Errorf("audio: stop source: %w", err)
	}
	return nil
}
