package correlator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// ErrQueueFull is reported when the invite queue has no free slot.
var ErrQueueFull = errors.New("queue full")

// ErrWorkerStopped is reported for invitations still queued at shutdown.
var ErrWorkerStopped = errors.New("invite worker stopped")

// InviteState is the invite worker's position in its cycle.
type InviteState int32

const (
	InviteIdle InviteState = iota
	InviteSending
	InviteAwaitingConfirmation
)

func (s InviteState) String() string {
	switch s {
	case InviteSending:
		return "sending"
	case InviteAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return "idle"
	}
}

type inviteJob struct {
	ctx    context.Context
	player string
	done   chan Outcome
}

// InviteQueue serializes invitations. Failure lines from the server often
// omit the player, so at most one invitation is in flight and an anonymous
// failure belongs to it.
type InviteQueue struct {
	corr    *Correlator
	jobs    chan inviteJob
	state   atomic.Int32
	stopped chan struct{}
	timeout time.Duration
	logger  zerolog.Logger
}

// NewInviteQueue creates a queue holding up to capacity waiting invitations.
func NewInviteQueue(corr *Correlator, capacity int, timeout time.Duration, logger zerolog.Logger) *InviteQueue {
	if capacity <= 0 {
		capacity = 64
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &InviteQueue{
		corr:    corr,
		jobs:    make(chan inviteJob, capacity),
		stopped: make(chan struct{}),
		timeout: timeout,
		logger:  logger.With().Str("component", "invites").Logger(),
	}
}

// State reports what the worker is doing.
func (q *InviteQueue) State() InviteState {
	return InviteState(q.state.Load())
}

// Len reports how many invitations are waiting.
func (q *InviteQueue) Len() int {
	return len(q.jobs)
}

// Invite enqueues player and blocks until the invitation settles or ctx ends.
func (q *InviteQueue) Invite(ctx context.Context, player string) Outcome {
	job := inviteJob{ctx: ctx, player: player, done: make(chan Outcome, 1)}

	select {
	case <-q.stopped:
		return Outcome{Reason: ErrWorkerStopped.Error()}
	default:
	}

	select {
	case q.jobs <- job:
		metrics.InviteQueueDepth.Inc()
	default:
		q.logger.Warn().Str("player", player).Msg("Invite queue full")
		return Outcome{Reason: ErrQueueFull.Error()}
	}

	select {
	case out := <-job.done:
		return out
	case <-ctx.Done():
		return Outcome{Reason: ctx.Err().Error()}
	case <-q.stopped:
		return Outcome{Reason: ErrWorkerStopped.Error()}
	}
}

// Run processes invitations one at a time until ctx is done.
func (q *InviteQueue) Run(ctx context.Context) error {
	defer close(q.stopped)
	q.logger.Info().Int("capacity", cap(q.jobs)).Msg("Invite worker started")

	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("Invite worker stopped")
			return nil
		case job := <-q.jobs:
			metrics.InviteQueueDepth.Dec()
			if job.ctx.Err() != nil {
				q.logger.Debug().Str("player", job.player).Msg("Skipping abandoned invite")
				continue
			}
			job.done <- q.process(job)
			q.state.Store(int32(InviteIdle))
		}
	}
}

func (q *InviteQueue) process(job inviteJob) Outcome {
	q.state.Store(int32(InviteSending))

	cmd := Command{
		Name:    "invite",
		Text:    "/g invite " + job.player,
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventInviteSent, job.player)},
		Reject: []eventbus.Matcher{
			eventbus.ForPlayer(models.EventInviteFailed, job.player),
			eventbus.ForPlayer(models.EventInviteFailed, ""),
		},
		Timeout: q.timeout,
	}

	out := q.corr.execute(job.ctx, cmd, func() {
		q.state.Store(int32(InviteAwaitingConfirmation))
	})

	q.logger.Info().
		Str("player", job.player).
		Bool("success", out.Success).
		Str("reason", out.Reason).
		Msg("Invite settled")
	return out
}
