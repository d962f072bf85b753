package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/correlator"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/rpc"
)

// Failure reasons reported by guild endpoints.
const (
	ReasonNotConnected    = "bot not connected"
	ReasonMissingUsername = "missing username"
	ReasonInvalidUsername = "invalid username"
	ReasonMissingRank     = "missing rank"
	ReasonMissingCommand  = "missing command"
	ReasonMissingMessage  = "missing message"
	ReasonInvalidData     = "invalid data"
)

// maxChatLength is the game's chat line limit.
const maxChatLength = 256

// CommandData is the union of fields accepted by guild endpoints.
type CommandData struct {
	Username string `json:"username"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
	Rank     string `json:"rank,omitempty"`
	Command  string `json:"command,omitempty"`
	Message  string `json:"message,omitempty"`
	Officer  bool   `json:"officer,omitempty"`
}

// Register binds every guild endpoint on reg.
func (h *Handler) Register(reg *rpc.Registry) {
	reg.Register("alive", h.guard(h.Ping))
	reg.Register("ping", h.guard(h.Ping))
	reg.Register("kick", h.guard(h.Kick))
	reg.Register("mute", h.guard(h.Mute))
	reg.Register("unmute", h.guard(h.Unmute))
	reg.Register("promote", h.guard(h.Promote))
	reg.Register("demote", h.guard(h.Demote))
	reg.Register("setrank", h.guard(h.SetRank))
	reg.Register("invite", h.guard(h.Invite))
	reg.Register("override", h.guard(h.Override))
	reg.Register("chat", h.guard(h.Chat))
}

type endpoint func(ctx context.Context, d CommandData) models.Result

// guard decodes the request data and refuses work while the upstream is down.
func (h *Handler) guard(fn endpoint) rpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (models.Result, error) {
		if h.upstream == nil || !h.upstream.Ready() {
			return models.Failure(ReasonNotConnected), nil
		}
		var d CommandData
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &d); err != nil {
				return models.Failure(ReasonInvalidData), nil
			}
		}
		return fn(ctx, d), nil
	}
}

func result(out correlator.Outcome) models.Result {
	if out.Success {
		return models.Ok()
	}
	return models.Failure(out.Reason)
}

// username validates d.Username. ok is false with a failure result otherwise.
func username(d CommandData) (string, models.Result, bool) {
	name := strings.TrimSpace(d.Username)
	if name == "" {
		return "", models.Failure(ReasonMissingUsername), false
	}
	if !isValidUsername(name) {
		return "", models.Failure(ReasonInvalidUsername), false
	}
	return name, models.Result{}, true
}

// Ping checks the upstream round trip.
func (h *Handler) Ping(ctx context.Context, _ CommandData) models.Result {
	return result(h.corr.Execute(ctx, correlator.Command{
		Name:    "ping",
		Text:    "/ping",
		Confirm: []eventbus.Matcher{eventbus.Is(models.EventPong)},
		Timeout: h.timeout,
	}))
}

// Kick removes a member from the guild.
func (h *Handler) Kick(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	text := strings.TrimSpace("/g kick " + name + " " + sanitizeText(d.Reason, maxChatLength))
	return result(h.corr.Execute(ctx, correlator.Command{
		Name:    "kick",
		Text:    text,
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberKick, name)},
		Timeout: h.timeout,
	}))
}

// Mute mutes a member, optionally for a duration such as "1h". The confirmed
// duration is returned in the result data.
func (h *Handler) Mute(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	text := "/g mute " + name
	if dur := sanitizeText(d.Duration, 16); dur != "" {
		text += " " + dur
	}
	out := h.corr.Execute(ctx, correlator.Command{
		Name:    "mute",
		Text:    text,
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberMuted, name)},
		Timeout: h.timeout,
	})
	res := result(out)
	if out.Success {
		res.Data = map[string]string{"duration": out.Event.Duration}
	}
	return res
}

// Unmute lifts a member mute.
func (h *Handler) Unmute(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	return result(h.corr.Execute(ctx, correlator.Command{
		Name:    "unmute",
		Text:    "/g unmute " + name,
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberUnmuted, name)},
		Timeout: h.timeout,
	}))
}

// Promote moves a member up one rank.
func (h *Handler) Promote(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	return result(h.corr.Execute(ctx, correlator.Command{
		Name:    "promote",
		Text:    "/g promote " + name,
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberPromote, name)},
		Timeout: h.timeout,
	}))
}

// Demote moves a member down one rank.
func (h *Handler) Demote(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	return result(h.corr.Execute(ctx, correlator.Command{
		Name:    "demote",
		Text:    "/g demote " + name,
		Confirm: []eventbus.Matcher{eventbus.ForPlayer(models.EventMemberDemote, name)},
		Timeout: h.timeout,
	}))
}

// SetRank sets a member's rank. The server reports it as either a promotion
// or a demotion, so whichever arrives first settles the command.
func (h *Handler) SetRank(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	rank := sanitizeText(d.Rank, 32)
	if rank == "" {
		return models.Failure(ReasonMissingRank)
	}
	fields := map[string]string{models.FieldPlayer: name, models.FieldToRank: rank}
	return result(h.corr.Execute(ctx, correlator.Command{
		Name: "setrank",
		Text: "/g setrank " + name + " " + rank,
		Confirm: []eventbus.Matcher{
			eventbus.FieldMatcher{Type: models.EventMemberPromote, Fields: fields},
			eventbus.FieldMatcher{Type: models.EventMemberDemote, Fields: fields},
		},
		Timeout: h.timeout,
	}))
}

// Invite queues a guild invitation.
func (h *Handler) Invite(ctx context.Context, d CommandData) models.Result {
	name, fail, ok := username(d)
	if !ok {
		return fail
	}
	return result(h.invites.Invite(ctx, name))
}

// Override sends a raw command. There is nothing to confirm it against.
func (h *Handler) Override(ctx context.Context, d CommandData) models.Result {
	cmd := sanitizeText(d.Command, maxChatLength)
	if cmd == "" {
		return models.Failure(ReasonMissingCommand)
	}
	return result(h.corr.Execute(ctx, correlator.Command{Name: "override", Text: cmd}))
}

// Chat relays a message to guild or officer chat.
func (h *Handler) Chat(ctx context.Context, d CommandData) models.Result {
	prefix := "/gc "
	if d.Officer {
		prefix = "/oc "
	}
	msg := sanitizeText(d.Message, maxChatLength-len(prefix))
	if msg == "" {
		return models.Failure(ReasonMissingMessage)
	}
	return result(h.corr.SendChecked(ctx, prefix+msg))
}
