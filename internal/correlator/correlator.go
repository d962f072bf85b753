// Package correlator issues upstream commands and resolves them against the
// events they cause.
package correlator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/metrics"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// Outcome reasons produced by the correlator itself.
const (
	ReasonTimeout  = "timeout"
	ReasonRejected = "rejected"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultProbeTimeout = time.Second
	defaultMaxAttempts  = 3
	defaultMaxLength    = 256
)

// Sender delivers a raw command line upstream.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Command is one upstream command and the events that settle it.
type Command struct {
	Name    string
	Text    string
	Confirm []eventbus.Matcher
	Reject  []eventbus.Matcher
	// Timeout overrides the correlator default when positive.
	Timeout time.Duration
}

// Outcome is the settled result of a command.
type Outcome struct {
	Success bool
	Reason  string
	Event   models.Event
}

// Correlator pairs commands with the bus events that answer them.
type Correlator struct {
	bus     *eventbus.Bus
	sender  Sender
	logger  zerolog.Logger
	timeout time.Duration

	probeTimeout time.Duration
	maxAttempts  int
	maxLength    int
	counter      atomic.Uint64
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout sets the default confirmation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) { c.timeout = d }
}

// WithProbe sets the duplicate-message probe window and attempt bound used by
// SendChecked.
func WithProbe(window time.Duration, attempts int) Option {
	return func(c *Correlator) {
		c.probeTimeout = window
		c.maxAttempts = attempts
	}
}

// WithMaxLength sets the upstream line limit, in runes, that anti-spam resends
// must fit within. Zero disables the limit.
func WithMaxLength(n int) Option {
	return func(c *Correlator) { c.maxLength = n }
}

// New creates a Correlator.
func New(bus *eventbus.Bus, sender Sender, logger zerolog.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		bus:          bus,
		sender:       sender,
		logger:       logger.With().Str("component", "correlator").Logger(),
		timeout:      defaultTimeout,
		probeTimeout: defaultProbeTimeout,
		maxAttempts:  defaultMaxAttempts,
		maxLength:    defaultMaxLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute sends cmd and waits for the first confirming or rejecting event.
// A command with no matchers succeeds as soon as it is sent. Execute never
// retries.
func (c *Correlator) Execute(ctx context.Context, cmd Command) Outcome {
	return c.execute(ctx, cmd, nil)
}

// execute calls sent, if set, once the command has left.
func (c *Correlator) execute(ctx context.Context, cmd Command, sent func()) Outcome {
	start := time.Now()
	log := c.logger.With().Str("command", cmd.Name).Logger()

	if len(cmd.Confirm) == 0 && len(cmd.Reject) == 0 {
		if err := c.sender.Send(ctx, cmd.Text); err != nil {
			return c.record(cmd.Name, start, Outcome{Reason: "send failed: " + err.Error()}, "send_failed")
		}
		return c.record(cmd.Name, start, Outcome{Success: true}, "success")
	}

	matchers := make([]eventbus.Matcher, 0, len(cmd.Confirm)+len(cmd.Reject))
	matchers = append(matchers, cmd.Confirm...)
	matchers = append(matchers, cmd.Reject...)
	waiter := c.bus.Expect(eventbus.AnyOf(matchers...))

	if err := c.sender.Send(ctx, cmd.Text); err != nil {
		waiter.Cancel()
		log.Warn().Err(err).Msg("Command send failed")
		return c.record(cmd.Name, start, Outcome{Reason: "send failed: " + err.Error()}, "send_failed")
	}
	if sent != nil {
		sent()
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	ev, err := waiter.Wait(ctx, timeout)
	if err != nil {
		if errors.Is(err, eventbus.ErrTimeout) {
			log.Debug().Dur("timeout", timeout).Msg("Command timed out")
			return c.record(cmd.Name, start, Outcome{Reason: ReasonTimeout}, "timeout")
		}
		return c.record(cmd.Name, start, Outcome{Reason: err.Error()}, "canceled")
	}

	for _, m := range cmd.Reject {
		if m.Match(ev) {
			reason := ev.Reason
			if reason == "" {
				reason = ReasonRejected
			}
			log.Debug().Str("reason", reason).Msg("Command rejected")
			return c.record(cmd.Name, start, Outcome{Reason: reason, Event: ev}, "rejected")
		}
	}
	return c.record(cmd.Name, start, Outcome{Success: true, Event: ev}, "success")
}

func (c *Correlator) record(name string, start time.Time, out Outcome, label string) Outcome {
	metrics.CommandsTotal.WithLabelValues(name, label).Inc()
	if label == "success" || label == "rejected" {
		metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return out
}

// SendChecked sends a chat line and watches for the server refusing it. A
// duplicate-message refusal is retried with an anti-spam suffix; any other
// refusal ends the attempt with its reason.
func (c *Correlator) SendChecked(ctx context.Context, text string) Outcome {
	msg := text
	blocked := eventbus.Is(models.EventMessageBlocked)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		waiter := c.bus.Expect(blocked)
		if err := c.sender.Send(ctx, msg); err != nil {
			waiter.Cancel()
			return Outcome{Reason: "send failed: " + err.Error()}
		}

		ev, err := waiter.Wait(ctx, c.probeTimeout)
		switch {
		case errors.Is(err, eventbus.ErrTimeout):
			return Outcome{Success: true}
		case err != nil:
			return Outcome{Reason: err.Error()}
		case ev.Reason != models.ReasonDuplicateMessage:
			return Outcome{Reason: ev.Reason, Event: ev}
		}

		metrics.AntispamResends.Inc()
		c.logger.Debug().Int("attempt", attempt).Msg("Duplicate message blocked, resending")
		msg = withSuffix(text, c.antispam(), c.maxLength)
	}
	return Outcome{Reason: models.ReasonDuplicateMessage}
}

// withSuffix appends " / suffix" to text, shortening text so the whole line
// stays within limit runes and the suffix survives upstream truncation.
func withSuffix(text, suffix string, limit int) string {
	tail := " / " + suffix
	if limit > 0 {
		keep := limit - utf8.RuneCountInString(tail)
		if r := []rune(text); len(r) > keep {
			text = string(r[:max(keep, 0)])
		}
	}
	return text + tail
}

// antispam returns a short suffix that differs on every call.
func (c *Correlator) antispam() string {
	n := c.counter.Add(1)
	sum := sha256.Sum256([]byte(strconv.FormatUint(n, 10)))
	return hex.EncodeToString(sum[:])[:10]
}
