package correlator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// fakeSender records sent lines and lets a test react to each one.
type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	err    error
	onSend func(text string)
}

func (f *fakeSender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.sent = append(f.sent, text)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(text)
	}
	return nil
}

func (f *fakeSender) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newEvent(t models.EventType, player, reason string) models.Event {
	ev := models.NewEvent(t, "")
	ev.Player = player
	ev.Reason = reason
	return ev
}

func setup(opts ...Option) (*eventbus.Bus, *fakeSender, *Correlator) {
	bus := eventbus.New(zerolog.Nop())
	sender := &fakeSender{}
	return bus, sender, New(bus, sender, zerolog.Nop(), opts...)
}

func TestExecute_Confirmed(t *testing.T) {
	bus, sender, corr := setup()
	sender.onSend = func(string) {
		bus.Publish(newEvent(models.EventMemberKick, "steve", ""))
	}

	out := corr.Execute(context.Background(), Command{
		Name:    "kick",
		Text:    "/g kick Steve spam",
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberKick, "Steve")},
	})

	assert.True(t, out.Success)
	assert.Equal(t, "steve", out.Event.Player)
	assert.Equal(t, []string{"/g kick Steve spam"}, sender.Sent())
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestExecute_FirstOfMany(t *testing.T) {
	bus, sender, corr := setup()
	sender.onSend = func(string) {
		ev := newEvent(models.EventMemberDemote, "Steve", "")
		ev.ToRank = "Member"
		bus.Publish(ev)
	}

	out := corr.Execute(context.Background(), Command{
		Name: "setrank",
		Text: "/g setrank Steve Member",
		Confirm: []eventbus.Matcher{
			eventbus.FieldMatcher{Type: models.EventMemberPromote, Fields: map[string]string{"player": "Steve", "to_rank": "Member"}},
			eventbus.FieldMatcher{Type: models.EventMemberDemote, Fields: map[string]string{"player": "Steve", "to_rank": "Member"}},
		},
	})

	assert.True(t, out.Success)
	assert.Equal(t, models.EventMemberDemote, out.Event.Type)
}

func TestExecute_Rejected(t *testing.T) {
	bus, sender, corr := setup()
	sender.onSend = func(string) {
		bus.Publish(newEvent(models.EventInviteFailed, "Steve", models.ReasonInGuild))
	}

	out := corr.Execute(context.Background(), Command{
		Name:    "invite",
		Text:    "/g invite Steve",
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventInviteSent, "Steve")},
		Reject:  []eventbus.Matcher{eventbus.ForPlayer(models.EventInviteFailed, "Steve")},
	})

	assert.False(t, out.Success)
	assert.Equal(t, models.ReasonInGuild, out.Reason)
}

func TestExecute_Timeout(t *testing.T) {
	bus, sender, corr := setup()

	start := time.Now()
	out := corr.Execute(context.Background(), Command{
		Name:    "promote",
		Text:    "/g promote Steve",
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberPromote, "Steve")},
		Timeout: 30 * time.Millisecond,
	})

	assert.False(t, out.Success)
	assert.Equal(t, ReasonTimeout, out.Reason)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Len(t, sender.Sent(), 1, "commands are never retried")
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestExecute_IgnoresUnrelatedEvents(t *testing.T) {
	bus, sender, corr := setup()
	sender.onSend = func(string) {
		bus.Publish(newEvent(models.EventMemberKick, "Alex", ""))
	}

	out := corr.Execute(context.Background(), Command{
		Name:    "kick",
		Text:    "/g kick Steve",
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberKick, "Steve")},
		Timeout: 20 * time.Millisecond,
	})
	assert.Equal(t, ReasonTimeout, out.Reason)
}

func TestExecute_SendFailure(t *testing.T) {
	bus, sender, corr := setup()
	sender.err = errors.New("not connected")

	out := corr.Execute(context.Background(), Command{
		Name:    "kick",
		Text:    "/g kick Steve",
		Confirm: []eventbus.Matcher{eventbus.Is(models.EventMemberKick)},
	})

	assert.False(t, out.Success)
	assert.Equal(t, "send failed: not connected", out.Reason)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestExecute_NoMatchersSucceedsOnSend(t *testing.T) {
	_, sender, corr := setup()
	out := corr.Execute(context.Background(), Command{Name: "override", Text: "/g online"})
	assert.True(t, out.Success)
	assert.Equal(t, []string{"/g online"}, sender.Sent())
}

func TestExecute_ContextCanceled(t *testing.T) {
	_, _, corr := setup()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := corr.Execute(ctx, Command{
		Name:    "ping",
		Text:    "/ping",
		Confirm: []eventbus.Matcher{eventbus.Is(models.EventPong)},
	})
	assert.False(t, out.Success)
	assert.Equal(t, context.Canceled.Error(), out.Reason)
}

func TestSendChecked_NotBlocked(t *testing.T) {
	_, sender, corr := setup(WithProbe(20*time.Millisecond, 3))
	out := corr.SendChecked(context.Background(), "/gc hello")
	assert.True(t, out.Success)
	assert.Equal(t, []string{"/gc hello"}, sender.Sent())
}

func TestSendChecked_ResendsWithSuffix(t *testing.T) {
	bus, sender, corr := setup(WithProbe(20*time.Millisecond, 3))
	first := true
	sender.onSend = func(string) {
		if first {
			first = false
			bus.Publish(newEvent(models.EventMessageBlocked, "", models.ReasonDuplicateMessage))
		}
	}

	out := corr.SendChecked(context.Background(), "/gc hello")
	require.True(t, out.Success)

	sent := sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "/gc hello", sent[0])
	assert.True(t, strings.HasPrefix(sent[1], "/gc hello / "))
	assert.Len(t, strings.TrimPrefix(sent[1], "/gc hello / "), 10)
}

func TestSendChecked_GivesUpAfterMaxAttempts(t *testing.T) {
	bus, sender, corr := setup(WithProbe(20*time.Millisecond, 3))
	sender.onSend = func(string) {
		bus.Publish(newEvent(models.EventMessageBlocked, "", models.ReasonDuplicateMessage))
	}

	out := corr.SendChecked(context.Background(), "/gc hello")
	assert.False(t, out.Success)
	assert.Equal(t, models.ReasonDuplicateMessage, out.Reason)

	sent := sender.Sent()
	require.Len(t, sent, 3)
	assert.NotEqual(t, sent[1], sent[2], "each resend carries a fresh suffix")
}

func TestSendChecked_OtherRefusalStops(t *testing.T) {
	bus, sender, corr := setup(WithProbe(20*time.Millisecond, 3))
	sender.onSend = func(string) {
		bus.Publish(newEvent(models.EventMessageBlocked, "", models.ReasonNoOfficerAccess))
	}

	out := corr.SendChecked(context.Background(), "/oc hello")
	assert.False(t, out.Success)
	assert.Equal(t, models.ReasonNoOfficerAccess, out.Reason)
	assert.Len(t, sender.Sent(), 1)
}

func TestSendChecked_ResendFitsMaxLength(t *testing.T) {
	bus, sender, corr := setup(WithProbe(20*time.Millisecond, 3), WithMaxLength(20))
	first := true
	sender.onSend = func(string) {
		if first {
			first = false
			bus.Publish(newEvent(models.EventMessageBlocked, "", models.ReasonDuplicateMessage))
		}
	}

	out := corr.SendChecked(context.Background(), "/gc abcdefghijklmnop")
	require.True(t, out.Success)

	sent := sender.Sent()
	require.Len(t, sent, 2)
	assert.Len(t, []rune(sent[1]), 20)
	assert.True(t, strings.HasPrefix(sent[1], "/gc abc / "), sent[1])
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "hello / 0123456789", withSuffix("hello", "0123456789", 0))
	assert.Equal(t, "hello / 0123456789", withSuffix("hello", "0123456789", 256))
	assert.Equal(t, "hé / 0123456789", withSuffix("héllo", "0123456789", 15))
	assert.Equal(t, " / 0123456789", withSuffix("hello", "0123456789", 5))
}
