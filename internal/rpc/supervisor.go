package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
)

// ErrCircuitOpen is returned once the restart budget is spent.
var ErrCircuitOpen = errors.New("restart circuit open")

// Supervisor restarts a long-running function after failures with
// exponential backoff.
type Supervisor struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxRestarts bounds consecutive restarts. 0 means unbounded.
	MaxRestarts int
	// StableAfter resets the restart count when a run lasted at least this long.
	StableAfter time.Duration
	AutoRestart bool
	Jitter      bool
	Logger      zerolog.Logger
}

// DefaultSupervisor returns the supervisor used for the RPC serving loop.
func DefaultSupervisor(logger zerolog.Logger) Supervisor {
	return Supervisor{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		MaxRestarts:  10,
		StableAfter:  5 * time.Minute,
		AutoRestart:  true,
		Jitter:       true,
		Logger:       logger,
	}
}

// Run calls fn until it returns nil, ctx is done, or the restart budget is
// spent.
func (s Supervisor) Run(ctx context.Context, fn func(context.Context) error) error {
	if s.InitialDelay <= 0 {
		s.InitialDelay = time.Second
	}
	if s.MaxDelay < s.InitialDelay {
		s.MaxDelay = s.InitialDelay
	}
	if s.Multiplier < 1 {
		s.Multiplier = 2.0
	}
	// Prevent overflow with extremely large multipliers
	if s.Multiplier > 1000 {
		s.Multiplier = 1000
	}

	log := s.Logger.With().Str("component", "supervisor").Logger()
	restarts := 0
	delay := s.InitialDelay

	for {
		started := time.Now()
		err := fn(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		if !s.AutoRestart {
			return err
		}

		if s.StableAfter > 0 && time.Since(started) >= s.StableAfter {
			restarts = 0
			delay = s.InitialDelay
		}
		restarts++
		if s.MaxRestarts > 0 && restarts > s.MaxRestarts {
			log.Error().Err(err).Int("restarts", s.MaxRestarts).Msg("Giving up")
			return fmt.Errorf("%w after %d restarts: %w", ErrCircuitOpen, s.MaxRestarts, err)
		}

		sleep := delay
		if s.Jitter && delay >= 4 {
			sleep += time.Duration(rand.Int64N(int64(delay / 4)))
		}
		metrics.TransportRestarts.Inc()
		log.Warn().Err(err).Int("restart", restarts).Dur("delay", sleep).Msg("Restarting after failure")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		next := float64(delay) * s.Multiplier
		if next > float64(s.MaxDelay) {
			delay = s.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}
}
