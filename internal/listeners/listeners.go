// Package listeners holds the bus consumers that ship with the bridge.
package listeners

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/correlator"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// AutoAccept accepts every guild join request.
type AutoAccept struct {
	sender correlator.Sender
	logger zerolog.Logger
	sub    *eventbus.Subscription
	ctx    context.Context
}

// NewAutoAccept subscribes to join requests on bus. The accept command is
// sent from its own goroutine so the publisher is never blocked; ctx bounds
// those sends.
func NewAutoAccept(ctx context.Context, bus *eventbus.Bus, sender correlator.Sender, logger zerolog.Logger) *AutoAccept {
	a := &AutoAccept{
		sender: sender,
		logger: logger.With().Str("component", "autoaccept").Logger(),
		ctx:    ctx,
	}
	a.sub = bus.Subscribe(a.handle, models.EventJoinRequest)
	return a
}

func (a *AutoAccept) handle(ev models.Event) {
	if ev.Player == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
		defer cancel()
		if err := a.sender.Send(ctx, "/g accept "+ev.Player); err != nil {
			a.logger.Warn().Err(err).Str("player", ev.Player).Msg("Failed to accept join request")
			return
		}
		a.logger.Info().Str("player", ev.Player).Msg("Accepted join request")
	}()
}

// Stop unsubscribes.
func (a *AutoAccept) Stop() {
	a.sub.Unsubscribe()
}

// ChatLog writes every event to the debug log.
type ChatLog struct {
	sub *eventbus.Subscription
}

// NewChatLog subscribes to all events on bus.
func NewChatLog(bus *eventbus.Bus, logger zerolog.Logger) *ChatLog {
	log := logger.With().Str("component", "chatlog").Logger()
	return &ChatLog{sub: bus.Subscribe(func(ev models.Event) {
		log.Debug().
			Str("event", ev.Type.String()).
			Str("id", ev.ID).
			Str("player", ev.Player).
			Str("raw", ev.Raw).
			Msg("Event")
	})}
}

// Stop unsubscribes.
func (c *ChatLog) Stop() {
	c.sub.Unsubscribe()
}
