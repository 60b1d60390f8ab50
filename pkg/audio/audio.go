// Package audio defines the frame type, transport codec, and the capture and
// playback pipelines that move PCM audio between host-supplied devices and
// the streaming speech clients.
//
// The two device-facing abstractions are:
//
//   - [Source] — yields raw PCM sample blocks at a fixed native rate.
//   - [Sink] — accepts ordered PCM frames for playback.
//
// Implementations are supplied by the host process (virtual sources and
// sinks, sound cards, loopback devices). The pipelines in this package are
// device-agnostic: [CapturePipeline] frames and filters what a Source yields,
// [PlaybackPipeline] drains a strict FIFO into one or more Sinks.
package audio

import "time"

// Frame is a contiguous buffer of signed 16-bit little-endian samples tagged
// with its sample rate. Frames are the atomic unit of audio transport:
// captured from input sources, encoded for the transcription stream, decoded
// from synthesis messages, and played through output sinks.
//
// All frames in this system are mono. The sample rate is fixed per pipeline
// instance for its lifetime; frames captured at one rate must never be fed
// to a consumer expecting another without resampling.
type Frame struct {
	// Data is PCM16 little-endian sample data. len(Data) is always even.
	Data []byte

	// SampleRate in Hz (e.g. 24000 for synthesis output, 16000 for capture).
	SampleRate int

	// Timestamp marks when the frame was produced, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of 16-bit samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / 2 }

// Duration returns the wall-clock playback length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Source yields raw PCM16 mono sample blocks from an input device at a fixed
// native rate. Start may be called once; the returned channel is closed when
// the source stops or fails.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start begins capture and returns the channel of raw sample blocks.
	// Block sizes are device-determined and carry no framing guarantees.
	Start() (<-chan []byte, error)

	// Stop releases the device and closes the block channel. Idempotent.
	Stop() error

	// SampleRate returns the fixed native rate of the source in Hz.
	SampleRate() int
}

// Sink accepts PCM frames for playback. Write returns once the frame has
// been handed to the device; it does not wait for the frame to finish
// playing. Implementations must be safe for concurrent use.
type Sink interface {
	Write(frame Frame) error
}
