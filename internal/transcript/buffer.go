// Package transcript accumulates incremental speech-recognition text into
// utterances and detects near-repeated questions.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Buffer accumulates incremental transcript fragments into one in-progress
// utterance. Fragments are appended in arrival order and never discarded,
// reordered, or deduplicated; the coordinator takes the whole utterance when
// the remote party falls silent.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	parts []string
	first time.Time
	last  time.Time
}

// Append adds a fragment received at the given time. Empty fragments are
// ignored.
func (b *Buffer) Append(text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.parts) == 0 {
		b.first = at
	}
	b.parts = append(b.parts, text)
	b.last = at
}

// Empty reports whether no text is buffered.
func (b *Buffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.parts) == 0
}

// Text returns the buffered utterance without consuming it.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.parts, " ")
}

// FirstAppend returns when the oldest buffered fragment arrived. Zero when
// the buffer is empty.
func (b *Buffer) FirstAppend() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.first
}

// Take returns the buffered utterance together with the arrival time of its
// first fragment, and resets the buffer.
func (b *Buffer) Take() (text string, startedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	text = strings.Join(b.parts, " ")
	startedAt = b.first
	b.parts = nil
	b.first = time.Time{}
	b.last = time.Time{}
	return text, startedAt
}

// Reset discards all buffered text.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parts = nil
	b.first = time.Time{}
	b.last = time.Time{}
}
