// Package history records completed conversation turns. The coordinator is
// the only writer; turns are immutable once appended and the log is strictly
// append-only.
package history

import (
	"context"
	"time"
)

// Role identifies which party spoke a turn.
type Role string

const (
	// RoleInterviewer is the remote conversational counterpart.
	RoleInterviewer Role = "interviewer"

	// RoleAgent is the automated agent's synthesized voice.
	RoleAgent Role = "agent"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleInterviewer || r == RoleAgent
}

// Turn is one utterance by either party. Immutable once appended.
type Turn struct {
	Role      Role
	Text      string
	StartedAt time.Time
	EndedAt   time.Time
}

// Store persists conversation turns. Implementations must be safe for
// concurrent use. Store failures never affect turn-taking: the coordinator
// logs and continues.
type Store interface {
	// Append records one completed turn.
	Append(ctx context.Context, turn Turn) error

	// Recent returns up to n most recent turns in chronological order
	// (oldest first).
	Recent(ctx context.Context, n int) ([]Turn, error)
}
