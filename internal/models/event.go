package models

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of a domain event.
type EventType int

const (
	EventUnknown EventType = iota
	EventGuildMessage
	EventOfficerMessage
	EventMemberOnline
	EventMemberOffline
	EventMemberJoin
	EventMemberLeave
	EventMemberKick
	EventMemberPromote
	EventMemberDemote
	EventMemberMuted
	EventMemberUnmuted
	EventChatMuted
	EventChatUnmuted
	EventInviteSent
	EventInviteFailed
	EventInviteReceived
	EventJoinRequest
	EventMessageBlocked
	EventBotMuted
	EventNotificationsToggled
	EventGuildLog
	EventPong
	EventBlock
	EventRemoteRequest
)

var eventTypeNames = map[EventType]string{
	EventUnknown:              "unknown",
	EventGuildMessage:         "guild_message",
	EventOfficerMessage:       "officer_message",
	EventMemberOnline:         "member_online",
	EventMemberOffline:        "member_offline",
	EventMemberJoin:           "member_join",
	EventMemberLeave:          "member_leave",
	EventMemberKick:           "member_kick",
	EventMemberPromote:        "member_promote",
	EventMemberDemote:         "member_demote",
	EventMemberMuted:          "member_muted",
	EventMemberUnmuted:        "member_unmuted",
	EventChatMuted:            "chat_muted",
	EventChatUnmuted:          "chat_unmuted",
	EventInviteSent:           "invite_sent",
	EventInviteFailed:         "invite_failed",
	EventInviteReceived:       "invite_received",
	EventJoinRequest:          "join_request",
	EventMessageBlocked:       "message_blocked",
	EventBotMuted:             "bot_muted",
	EventNotificationsToggled: "notifications_toggled",
	EventGuildLog:             "guild_log",
	EventPong:                 "pong",
	EventBlock:                "block",
	EventRemoteRequest:        "remote_request",
}

// String returns the snake_case name of the event type.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseEventType resolves a name produced by String back to its EventType.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventTypeNames {
		if n == name {
			return t, true
		}
	}
	return EventUnknown, false
}

// Field names accepted by Event.Field.
const (
	FieldPlayer   = "player"
	FieldActor    = "actor"
	FieldBody     = "body"
	FieldFromRank = "from_rank"
	FieldToRank   = "to_rank"
	FieldDuration = "duration"
	FieldReason   = "reason"
	FieldText     = "text"
)

// Reasons carried by invite failures, blocked messages and blocks.
const (
	ReasonInGuild          = "inGuild"
	ReasonInThisGuild      = "inThisGuild"
	ReasonInvitesOff       = "invitesOff"
	ReasonAlreadyInvited   = "alreadyInvited"
	ReasonGuildFull        = "guildFull"
	ReasonDuplicateMessage = "duplicateMessage"
	ReasonNoOfficerAccess  = "noOfficerAccess"
	ReasonGuildMuted       = "guildMuted"
	ReasonEnabled          = "enabled"
	ReasonDisabled         = "disabled"
)

// Event is a single classified occurrence on the upstream chat stream.
// Every field is a value, so copies handed to subscribers never alias.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Player    string    `json:"player,omitempty"` // subject of the event
	Actor     string    `json:"actor,omitempty"`  // who performed it, when known
	Body      string    `json:"body,omitempty"`   // chat body
	FromRank  string    `json:"from_rank,omitempty"`
	ToRank    string    `json:"to_rank,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Text      string    `json:"text,omitempty"` // joined block or log text
	Raw       string    `json:"raw,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewEvent stamps a new event with an ID and emission time.
func NewEvent(t EventType, raw string) Event {
	return Event{
		ID:        ulid.Make().String(),
		Type:      t,
		Raw:       raw,
		EmittedAt: time.Now(),
	}
}

// Field returns a payload field by name, or "" for unknown names.
func (e Event) Field(name string) string {
	switch strings.ToLower(name) {
	case FieldPlayer:
		return e.Player
	case FieldActor:
		return e.Actor
	case FieldBody:
		return e.Body
	case FieldFromRank:
		return e.FromRank
	case FieldToRank:
		return e.ToRank
	case FieldDuration:
		return e.Duration
	case FieldReason:
		return e.Reason
	case FieldText:
		return e.Text
	}
	return ""
}
