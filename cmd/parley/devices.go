package main

import (
	"errors"
	"io"
	"sync"

	"github.com/parley-voice/parley/pkg/audio"
)

// blockSize is how many bytes are read from the input stream per block.
// 4096 bytes is ~85ms of PCM16 at 24kHz; the capture pipeline reframes
// blocks to its own cadence, so the exact size only affects read latency.
const blockSize = 4096

// streamSource adapts an io.Reader carrying raw PCM16 mono samples into an
// [audio.Source]. Pacing is the producer's responsibility: a live device
// piped into stdin delivers blocks in real time.
type streamSource struct {
	r    io.Reader
	rate int

	mu      sync.Mutex
	blocks  chan []byte
	done    chan struct{}
	stopped bool
}

func newStreamSource(r io.Reader, sampleRate int) *streamSource {
	return &streamSource{r: r, rate: sampleRate}
}

var _ audio.Source = (*streamSource)(nil)

func (s *streamSource) Start() (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks != nil {
		return nil, errors.New("stream source already started")
	}
	s.blocks = make(chan []byte, 8)
	s.done = make(chan struct{})

	go s.read(s.blocks, s.done)
	return s.blocks, nil
}

func (s *streamSource) read(blocks chan<- []byte, done <-chan struct{}) {
	defer close(blocks)
	for {
		buf := make([]byte, blockSize)
		n, err := s.r.Read(buf)
		if n > 0 {
			select {
			case blocks <- buf[:n]:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *streamSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks == nil || s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	return nil
}

func (s *streamSource) SampleRate() int { return s.rate }

// streamSink writes frame payloads to an io.Writer as raw PCM16.
type streamSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newStreamSink(w io.Writer) *streamSink {
	return &streamSink{w: w}
}

var _ audio.Sink = (*streamSink)(nil)

func (s *streamSink) Write(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(frame.Data)
	return err
}
