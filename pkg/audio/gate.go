package audio

import "sync/atomic"

// Gate is the single feedback-loop guard shared between the coordinator and
// the capture pipeline. The coordinator closes it while the agent is speaking
// (and through the post-speech cooldown) so the system never transcribes its
// own voice; the capture pipeline only ever reads it.
//
// The gate is write-once-per-transition (never read-modify-written by the
// reader), so a plain atomic flag is sufficient — no lock.
type Gate struct {
	open atomic.Bool
}

// NewGate returns a gate in the open (capturing) position.
func NewGate() *Gate {
	g := &Gate{}
	g.open.Store(true)
	return g
}

// Open allows capture frames through.
func (g *Gate) Open() { g.open.Store(true) }

// Close suppresses capture frames. Frames arriving while closed are dropped,
// not buffered.
func (g *Gate) Close() { g.open.Store(false) }

// IsOpen reports whether capture frames are currently allowed through.
func (g *Gate) IsOpen() bool { return g.open.Load() }
