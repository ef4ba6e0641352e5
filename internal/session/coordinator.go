package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/peerdesk/peerdesk/internal/apperr"
	"github.com/peerdesk/peerdesk/internal/observability"
	"github.com/peerdesk/peerdesk/internal/provider"
	"github.com/peerdesk/peerdesk/internal/user"
)

const (
	// DefaultPageSize and MaxPageSize bound list pagination.
	DefaultPageSize = 20
	MaxPageSize     = 100

	// maxCallIDAttempts bounds retries when a freshly generated call id
	// collides with an existing one.
	maxCallIDAttempts = 3
)

// Coordinator orchestrates the session lifecycle across the durable store and
// the realtime provider. It holds no session state of its own and no lock
// across I/O; races are resolved by the store's conditional updates.
//
// Consistency policy, in order of strictness:
//   - Create is atomic to the caller: if provisioning either remote resource
//     fails, the just-written record is deleted before the error surfaces.
//   - Join's durable claim is linearizable; a chat-membership failure after
//     the claim is surfaced but deliberately not rolled back (the claim
//     stands, the member add is safe to retry).
//   - End tears remote resources down best-effort and always completes the
//     record; provider leakage is logged, never fatal.
type Coordinator struct {
	store           Store
	provider        provider.Client
	metrics         *observability.Metrics
	providerTimeout time.Duration
}

func NewCoordinator(store Store, client provider.Client, metrics *observability.Metrics, providerTimeout time.Duration) *Coordinator {
	if providerTimeout <= 0 {
		providerTimeout = 5 * time.Second
	}
	return &Coordinator{
		store:           store,
		provider:        client,
		metrics:         metrics,
		providerTimeout: providerTimeout,
	}
}

// Create validates the input, writes the durable record, then provisions the
// remote call and chat channel. The record is written first so it is the
// source of truth; if either remote creation fails the record is deleted
// again and the caller observes no session at all.
func (c *Coordinator) Create(ctx context.Context, host *user.User, problem, difficulty string) (*Session, error) {
	problem = strings.TrimSpace(problem)
	if utf8.RuneCountInString(problem) < MinProblemLength {
		return nil, apperr.Validationf("invalid_problem",
			"problem description must be at least %d characters", MinProblemLength)
	}
	difficulty, ok := NormalizeDifficulty(difficulty)
	if !ok {
		return nil, apperr.Validationf("invalid_difficulty",
			"difficulty must be one of easy, medium, hard")
	}

	// Friendly pre-check; the store's partial unique index is the real guard.
	if _, err := c.store.FindActiveByHost(ctx, host.ID); err == nil {
		return nil, apperr.Conflictf("active_session_exists", "you already have an active session")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not check active sessions", err)
	}

	sess, err := c.insertWithFreshCallID(ctx, host.ID, problem, difficulty)
	if err != nil {
		return nil, err
	}

	if perr := c.provisionRemote(ctx, sess, host.ExternalID); perr != nil {
		c.rollbackCreate(ctx, sess)
		return nil, perr
	}

	c.metrics.SessionEvents.WithLabelValues("created").Inc()
	c.metrics.ActiveSessions.Inc()
	return sess, nil
}

func (c *Coordinator) insertWithFreshCallID(ctx context.Context, hostID, problem, difficulty string) (*Session, error) {
	for attempt := 0; attempt < maxCallIDAttempts; attempt++ {
		sess := &Session{
			ID:         uuid.NewString(),
			Problem:    problem,
			Difficulty: difficulty,
			HostID:     hostID,
			Status:     StatusActive,
			CallID:     NewCallID(),
			CreatedAt:  time.Now().UTC(),
		}
		err := c.store.Insert(ctx, sess)
		switch {
		case err == nil:
			return sess, nil
		case errors.Is(err, ErrDuplicateCallID):
			continue
		case errors.Is(err, ErrHostHasActive):
			// Lost the race against a concurrent create from the same host.
			return nil, apperr.Conflictf("active_session_exists", "you already have an active session")
		default:
			return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not create the session", err)
		}
	}
	return nil, apperr.Wrap(apperr.KindInternal, "call_id_exhausted",
		"could not generate a unique call id", ErrDuplicateCallID)
}

func (c *Coordinator) provisionRemote(ctx context.Context, sess *Session, hostExternalID string) error {
	meta := provider.CallMetadata{
		Problem:    sess.Problem,
		Difficulty: sess.Difficulty,
		SessionID:  sess.ID,
	}
	if err := c.providerCall(ctx, "create_call", func(cctx context.Context) error {
		return c.provider.CreateCall(cctx, sess.CallID, meta, hostExternalID)
	}); err != nil {
		return apperr.Providerf("provider_error", err, "could not provision the video call")
	}
	if err := c.providerCall(ctx, "create_channel", func(cctx context.Context) error {
		return c.provider.CreateChannel(cctx, sess.CallID, sess.Problem+" Session", []string{hostExternalID})
	}); err != nil {
		// The call already exists remotely; take it down again so rollback
		// leaves nothing behind on either side.
		if derr := c.providerCall(ctx, "delete_call", func(cctx context.Context) error {
			return c.provider.DeleteCall(cctx, sess.CallID)
		}); derr != nil {
			log.Printf("session %s: rollback call deletion failed: %v", sess.ID, derr)
		}
		return apperr.Providerf("provider_error", err, "could not provision the chat room")
	}
	return nil
}

// rollbackCreate compensates a failed create: the durable record is deleted
// before the error surfaces so the caller never observes a session without
// its remote resources. Detached from the request context so a caller
// disconnect cannot strand the record.
func (c *Coordinator) rollbackCreate(ctx context.Context, sess *Session) {
	if derr := c.store.Delete(context.WithoutCancel(ctx), sess.ID); derr != nil {
		log.Printf("session %s: rollback delete failed: %v", sess.ID, derr)
	}
	c.metrics.SessionEvents.WithLabelValues("create_rolled_back").Inc()
}

// Join claims the participant slot with a single conditional update; exactly
// one of any set of concurrent joiners wins. The host is excluded inside the
// same predicate, so a self-joining host never appears as participant, not
// even transiently. After the claim the joiner is added to the chat channel;
// a failure there is surfaced but the claim is kept (see Coordinator doc).
func (c *Coordinator) Join(ctx context.Context, sessionID string, joiner *user.User) (*Session, error) {
	sess, err := c.store.ClaimParticipant(ctx, sessionID, joiner.ID)
	if err != nil {
		if !errors.Is(err, ErrClaimFailed) {
			return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not join the session", err)
		}
		return nil, c.classifyLostClaim(ctx, sessionID, joiner.ID)
	}

	if err := c.providerCall(ctx, "add_channel_member", func(cctx context.Context) error {
		return c.provider.AddChannelMember(cctx, sess.CallID, joiner.ExternalID)
	}); err != nil {
		log.Printf("session %s: chat membership for %s failed (participant claim kept): %v",
			sess.ID, joiner.ID, err)
		return nil, apperr.Providerf("provider_error", err, "could not add you to the chat room")
	}

	c.metrics.SessionEvents.WithLabelValues("joined").Inc()
	return sess, nil
}

// classifyLostClaim turns a zero-row claim into the precise client error.
func (c *Coordinator) classifyLostClaim(ctx context.Context, sessionID, joinerID string) error {
	cur, err := c.store.GetByID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFoundf("session_not_found", "session not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store_error", "could not join the session", err)
	}
	if cur.HostID == joinerID {
		return apperr.Validationf("self_join", "host cannot join their own session")
	}
	return apperr.Conflictf("session_unavailable", "session is already full or not active")
}

// End lets the host terminate the session. Both remote resources are deleted
// in parallel and independently; either failure is logged and swallowed, and
// the record always reaches completed with ended_at set.
func (c *Coordinator) End(ctx context.Context, sessionID string, requester *user.User) (*Session, error) {
	sess, err := c.store.GetByID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFoundf("session_not_found", "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not load the session", err)
	}
	if sess.HostID != requester.ID {
		return nil, apperr.Forbiddenf("not_host", "only the host can end the session")
	}
	if sess.Status == StatusCompleted {
		return nil, apperr.Validationf("already_completed", "session is already completed")
	}

	c.teardownRemote(ctx, sess)

	done, err := c.store.Complete(ctx, sessionID, time.Now().UTC())
	if errors.Is(err, ErrNotActive) {
		// Raced with another end between the read and the flip.
		return nil, apperr.Validationf("already_completed", "session is already completed")
	}
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFoundf("session_not_found", "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not end the session", err)
	}

	c.metrics.SessionEvents.WithLabelValues("ended").Inc()
	c.metrics.ActiveSessions.Dec()
	return done, nil
}

// teardownRemote deletes the call and channel concurrently. Failures only
// cost remote tidiness, never the status flip, so they are logged and
// dropped. Detached from the request context: a caller disconnect should not
// abort cleanup already underway.
func (c *Coordinator) teardownRemote(ctx context.Context, sess *Session) {
	base := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := c.providerCall(base, "delete_call", func(cctx context.Context) error {
			return c.provider.DeleteCall(cctx, sess.CallID)
		}); err != nil {
			log.Printf("session %s: video call teardown failed: %v", sess.ID, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.providerCall(base, "delete_channel", func(cctx context.Context) error {
			return c.provider.DeleteChannel(cctx, sess.CallID)
		}); err != nil {
			log.Printf("session %s: chat room teardown failed: %v", sess.ID, err)
		}
	}()
	wg.Wait()
}

func (c *Coordinator) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := c.store.GetByID(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFoundf("session_not_found", "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not load the session", err)
	}
	return sess, nil
}

func (c *Coordinator) ListActive(ctx context.Context, page, limit int) ([]*Session, error) {
	page, limit = normalizePaging(page, limit)
	out, err := c.store.ListActive(ctx, page, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not list active sessions", err)
	}
	return out, nil
}

func (c *Coordinator) ListRecentForUser(ctx context.Context, userID string, page, limit int) ([]*Session, error) {
	page, limit = normalizePaging(page, limit)
	out, err := c.store.ListRecentForUser(ctx, userID, page, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store_error", "could not list recent sessions", err)
	}
	return out, nil
}

// providerCall bounds one provider operation with the configured timeout and
// records its metrics. A timeout is indistinguishable from any other
// provider failure for the caller.
func (c *Coordinator) providerCall(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	start := time.Now()
	err := fn(cctx)
	c.metrics.ObserveProviderCall(op, err, time.Since(start))
	if cctx.Err() != nil && err != nil {
		return fmt.Errorf("%w: timed out after %s", provider.ErrUnavailable, c.providerTimeout)
	}
	return err
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
