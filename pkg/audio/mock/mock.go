// Package mock provides in-memory test doubles for the [audio.Source] and
// [audio.Sink] interfaces.
//
// All mocks are safe for concurrent use. Sources are fed by the test through
// [Source.Emit]; sinks record every frame written so tests can assert on
// order and content, and expose exported fields to inject device failures.
//
// Typical usage:
//
//	src := mock.NewSource(16000)
//	sink := &mock.Sink{}
//	go src.Emit([]byte{0x00, 0x10})
package mock

import (
	"errors"
	"sync"

	"github.com/parley-voice/parley/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source] fed by the test.
type Source struct {
	rate   int
	blocks chan []byte

	mu        sync.Mutex
	started   bool
	stopped   bool
	StartErr  error // returned by Start when non-nil
	StopErr   error // returned by Stop when non-nil
	CallsStop int
}

// NewSource creates a mock source reporting the given sample rate.
func NewSource(sampleRate int) *Source {
	return &Source{
		rate:   sampleRate,
		blocks: make(chan []byte, 64),
	}
}

// Emit delivers one raw sample block to the pipeline. Panics if called after
// Stop (mirrors a real device handle being released).
func (s *Source) Emit(block []byte) {
	s.blocks <- block
}

// Start implements [audio.Source].
func (s *Source) Start() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.started {
		return nil, errors.New("mock source: started twice")
	}
	s.started = true
	return s.blocks, nil
}

// Stop implements [audio.Source]. Closes the block channel on first call.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallsStop++
	if !s.stopped {
		s.stopped = true
		close(s.blocks)
	}
	return s.StopErr
}

// SampleRate implements [audio.Source].
func (s *Source) SampleRate() int { return s.rate }

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink] that records written frames.
type Sink struct {
	mu     sync.Mutex
	frames []audio.Frame

	// FailNext makes the next n Write calls return an error, decrementing
	// with each failure. Set it to simulate device errors.
	FailNext int

	// WriteErr is the error returned for failed writes. Defaults to a
	// generic device error when nil.
	WriteErr error
}

// Write implements [audio.Sink].
func (s *Sink) Write(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNext > 0 {
		s.FailNext--
		if s.WriteErr != nil {
			return s.WriteErr
		}
		return errors.New("mock sink: device error")
	}
	s.frames = append(s.frames, frame)
	return nil
}

// Frames returns a snapshot of all frames written so far.
func (s *Sink) Frames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}
