package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")

	// ErrDuplicateCallID reports a generated call id collision; the caller
	// retries with a fresh token.
	ErrDuplicateCallID = errors.New("call id already in use")

	// ErrHostHasActive reports the store-level guarantee that a host owns at
	// most one active session.
	ErrHostHasActive = errors.New("host already has an active session")

	// ErrClaimFailed reports a lost participant claim: the session is full,
	// no longer active, missing, or the joiner is the host. The caller
	// re-reads to tell these apart.
	ErrClaimFailed = errors.New("participant claim failed")

	// ErrNotActive reports a completion attempt on a session that is not
	// active anymore.
	ErrNotActive = errors.New("session is not active")
)

// Store is the durable source of truth for sessions. Reads that feed
// correctness decisions go through the conditional-update methods
// (ClaimParticipant, Complete) rather than separate read+write steps; both
// stores guarantee safe concurrent access.
type Store interface {
	// Insert persists a new session. Returns ErrDuplicateCallID or
	// ErrHostHasActive on the corresponding uniqueness violation.
	Insert(ctx context.Context, s *Session) error

	GetByID(ctx context.Context, id string) (*Session, error)

	// FindActiveByHost returns the host's active session, or ErrNotFound.
	FindActiveByHost(ctx context.Context, hostID string) (*Session, error)

	// ClaimParticipant atomically sets the participant iff the session is
	// active, has no participant, and the joiner is not the host. Exactly one
	// of any set of concurrent claims succeeds; the rest get ErrClaimFailed.
	ClaimParticipant(ctx context.Context, sessionID, joinerID string) (*Session, error)

	// Complete atomically flips status active->completed and sets ended_at.
	// Returns ErrNotActive if the session already completed, ErrNotFound if
	// it does not exist. The transition never reverses.
	Complete(ctx context.Context, sessionID string, endedAt time.Time) (*Session, error)

	// Delete removes a session record; used as the compensating action when
	// remote provisioning fails mid-create.
	Delete(ctx context.Context, id string) error

	// ListActive returns active sessions ordered by creation time descending.
	// page is 1-based.
	ListActive(ctx context.Context, page, limit int) ([]*Session, error)

	// ListRecentForUser returns completed sessions where the user was host or
	// participant, ordered by creation time descending. page is 1-based.
	ListRecentForUser(ctx context.Context, userID string, page, limit int) ([]*Session, error)

	Close() error
}
