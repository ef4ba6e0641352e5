package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Session pairs a host and an optional participant around a coding problem.
// CallID correlates the record with the video call and chat channel hosted by
// the realtime provider; both remote resources are keyed by it.
type Session struct {
	ID            string     `json:"id"`
	Problem       string     `json:"problem"`
	Difficulty    string     `json:"difficulty"`
	HostID        string     `json:"host_id"`
	ParticipantID *string    `json:"participant_id"`
	Status        Status     `json:"status"`
	CallID        string     `json:"call_id"`
	CreatedAt     time.Time  `json:"created_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// MinProblemLength applies to the problem text after trimming.
const MinProblemLength = 5

var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// NormalizeDifficulty lowercases the input and reports whether it is one of
// the accepted levels.
func NormalizeDifficulty(difficulty string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(difficulty))
	return d, validDifficulties[d]
}

// NewCallID generates the provider-facing resource token. A millisecond
// timestamp plus a uuid segment keeps accidental collisions negligible; the
// store's unique constraint catches the rest.
func NewCallID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("session_%d_%s", time.Now().UnixMilli(), suffix)
}

func clone(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.ParticipantID != nil {
		p := *s.ParticipantID
		c.ParticipantID = &p
	}
	if s.EndedAt != nil {
		e := *s.EndedAt
		c.EndedAt = &e
	}
	return &c
}
