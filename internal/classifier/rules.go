package classifier

import (
	"regexp"
	"strings"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// rank matches an optional "[MVP+] " style prefix in front of a player name.
const rank = `(?:\[[^\]]+\] )?`

var (
	reGuildChat      = regexp.MustCompile(`^Guild > ` + rank + `(\w+)(?: \[[^\]]+\])?: (.*)$`)
	reGuildPresence  = regexp.MustCompile(`^Guild > ` + rank + `(\w+) (joined|left)\.$`)
	reOfficerChat    = regexp.MustCompile(`^Officer > ` + rank + `(\w+)(?: \[[^\]]+\])?: (.*)$`)
	reJoined         = regexp.MustCompile(`(?m)^` + rank + `(\w+) joined the guild!`)
	reLeft           = regexp.MustCompile(`(?m)^` + rank + `(\w+) left the guild!`)
	rePromoted       = regexp.MustCompile(`(?m)^` + rank + `(\w+) was promoted from (.+) to (\S+?)\s*$`)
	reDemoted        = regexp.MustCompile(`(?m)^` + rank + `(\w+) was demoted from (.+) to (\S+?)\s*$`)
	reKicked         = regexp.MustCompile(`(?m)^` + rank + `(\w+) was kicked from the guild(?: by ` + rank + `(\w+))?!`)
	reInvited        = regexp.MustCompile(`(?m)^You invited ` + rank + `(\w+) to your guild\. They have 5 minutes to accept\.`)
	reOfflineInvite  = regexp.MustCompile(`(?m)^You sent an offline invite to ` + rank + `(\w+)!`)
	reInAnotherGuild = regexp.MustCompile(`(?m)^` + rank + `(\w+) is already in another guild!`)
	reInYourGuild    = regexp.MustCompile(`(?m)^` + rank + `(\w+) is already in your guild!`)
	reAlreadyInvited = regexp.MustCompile(`You've already invited ` + rank + `(\w+) to your guild! Wait for them to accept!`)
	reJoinRequest    = regexp.MustCompile(`(?im)^` + rank + `(\w+) has requested to join the guild!`)
	reChatMuted      = regexp.MustCompile(`(?m)^` + rank + `(\w+) has muted the guild chat for (\S+)`)
	reChatUnmuted    = regexp.MustCompile(`(?m)^` + rank + `(\w+) has unmuted the guild chat`)
	reMemberMuted    = regexp.MustCompile(`(?m)^` + rank + `(\w+) has muted ` + rank + `(\w+) for (\w+)`)
	reMemberUnmuted  = regexp.MustCompile(`(?m)^` + rank + `(\w+) has unmuted ` + rank + `(\w+)`)
	reGuildMuted     = regexp.MustCompile(`You're currently guild muted for (\S+?)[.!]?\s*$`)
	reBotMuted       = regexp.MustCompile(`Your mute will expire in (.+?)\s*$`)
	reMuteID         = regexp.MustCompile(`Mute ID: (\S+)`)
	reInviteReceived = regexp.MustCompile(`Click here to accept or type /guild accept (\w+)`)
)

// IsBlockStart reports whether line opens a multi-line command response.
func IsBlockStart(line string) bool {
	return strings.HasPrefix(line, "Guild Name: ") ||
		strings.Contains(line, "Top Guild Experience") ||
		strings.HasPrefix(line, "Created: ")
}

// DefaultRecognizers returns the guild chat vocabulary in match order.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		{
			Name:           "guild_presence",
			WhileBuffering: true,
			Match: func(line string) (models.Event, bool) {
				m := reGuildPresence.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				t := models.EventMemberOnline
				if m[2] == "left" {
					t = models.EventMemberOffline
				}
				ev := models.NewEvent(t, line)
				ev.Player = m[1]
				return ev, true
			},
		},
		{
			Name:           "guild_chat",
			WhileBuffering: true,
			Match: chat(reGuildChat, models.EventGuildMessage),
		},
		{
			Name:           "officer_chat",
			WhileBuffering: true,
			Match: chat(reOfficerChat, models.EventOfficerMessage),
		},
		{
			Name: "pong",
			Match: func(line string) (models.Event, bool) {
				if !strings.HasPrefix(line, "Unknown command") {
					return models.Event{}, false
				}
				return models.NewEvent(models.EventPong, line), true
			},
		},
		{
			Name: "guild_log",
			Match: func(line string) (models.Event, bool) {
				if !strings.Contains(line, "Guild Log") {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventGuildLog, line)
				ev.Text = line
				return ev, true
			},
		},
		{Name: "member_join", Match: player(reJoined, models.EventMemberJoin)},
		{Name: "member_leave", Match: player(reLeft, models.EventMemberLeave)},
		{Name: "member_promote", Match: rankChange(rePromoted, models.EventMemberPromote)},
		{Name: "member_demote", Match: rankChange(reDemoted, models.EventMemberDemote)},
		{
			Name: "member_kick",
			Match: func(line string) (models.Event, bool) {
				m := reKicked.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventMemberKick, line)
				ev.Player = m[1]
				ev.Actor = m[2]
				return ev, true
			},
		},
		{Name: "notifications_off", Match: phrase("Disabled guild join/leave notifications!", models.EventNotificationsToggled, models.ReasonDisabled)},
		{Name: "notifications_on", Match: phrase("Enabled guild join/leave notifications!", models.EventNotificationsToggled, models.ReasonEnabled)},
		{Name: "duplicate_message", Match: phrase("You cannot say the same message twice!", models.EventMessageBlocked, models.ReasonDuplicateMessage)},
		{Name: "no_officer_access", Match: phrase("You don't have access to the officer chat!", models.EventMessageBlocked, models.ReasonNoOfficerAccess)},
		{Name: "invite_sent", Match: player(reInvited, models.EventInviteSent)},
		{
			Name: "invite_sent_offline",
			Match: func(line string) (models.Event, bool) {
				ev, ok := player(reOfflineInvite, models.EventInviteSent)(line)
				if ok {
					ev.Reason = "offline"
				}
				return ev, ok
			},
		},
		{Name: "invite_in_other_guild", Match: inviteFailure(reInAnotherGuild, models.ReasonInGuild)},
		{Name: "invite_in_this_guild", Match: inviteFailure(reInYourGuild, models.ReasonInThisGuild)},
		{Name: "invites_off", Match: phrase("You cannot invite this player to your guild!", models.EventInviteFailed, models.ReasonInvitesOff)},
		{Name: "already_invited", Match: inviteFailure(reAlreadyInvited, models.ReasonAlreadyInvited)},
		{Name: "join_request", Match: player(reJoinRequest, models.EventJoinRequest)},
		{Name: "guild_full", Match: phrase("Your guild is full!", models.EventInviteFailed, models.ReasonGuildFull)},
		{
			Name: "chat_muted",
			Match: func(line string) (models.Event, bool) {
				m := reChatMuted.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventChatMuted, line)
				ev.Actor = m[1]
				ev.Duration = m[2]
				return ev, true
			},
		},
		{
			Name: "chat_unmuted",
			Match: func(line string) (models.Event, bool) {
				m := reChatUnmuted.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventChatUnmuted, line)
				ev.Actor = m[1]
				return ev, true
			},
		},
		{
			Name: "member_muted",
			Match: func(line string) (models.Event, bool) {
				m := reMemberMuted.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventMemberMuted, line)
				ev.Actor = m[1]
				ev.Player = m[2]
				ev.Duration = m[3]
				return ev, true
			},
		},
		{
			Name: "member_unmuted",
			Match: func(line string) (models.Event, bool) {
				m := reMemberUnmuted.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventMemberUnmuted, line)
				ev.Actor = m[1]
				ev.Player = m[2]
				return ev, true
			},
		},
		{
			Name: "guild_muted",
			Match: func(line string) (models.Event, bool) {
				m := reGuildMuted.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventMessageBlocked, line)
				ev.Reason = models.ReasonGuildMuted
				ev.Duration = m[1]
				return ev, true
			},
		},
		{
			Name: "bot_muted",
			Match: func(line string) (models.Event, bool) {
				m := reBotMuted.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventBotMuted, line)
				ev.Duration = m[1]
				return ev, true
			},
		},
		{
			// Follows the mute notice; Reason carries the ID to quote in an appeal.
			Name: "mute_id",
			Match: func(line string) (models.Event, bool) {
				m := reMuteID.FindStringSubmatch(line)
				if m == nil {
					return models.Event{}, false
				}
				ev := models.NewEvent(models.EventBotMuted, line)
				ev.Reason = m[1]
				return ev, true
			},
		},
		{Name: "invite_received", Match: player(reInviteReceived, models.EventInviteReceived)},
	}
}

func chat(re *regexp.Regexp, t models.EventType) func(string) (models.Event, bool) {
	return func(line string) (models.Event, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return models.Event{}, false
		}
		ev := models.NewEvent(t, line)
		ev.Player = m[1]
		ev.Body = m[2]
		return ev, true
	}
}

func player(re *regexp.Regexp, t models.EventType) func(string) (models.Event, bool) {
	return func(line string) (models.Event, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return models.Event{}, false
		}
		ev := models.NewEvent(t, line)
		ev.Player = m[1]
		return ev, true
	}
}

func rankChange(re *regexp.Regexp, t models.EventType) func(string) (models.Event, bool) {
	return func(line string) (models.Event, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return models.Event{}, false
		}
		ev := models.NewEvent(t, line)
		ev.Player = m[1]
		ev.FromRank = m[2]
		ev.ToRank = m[3]
		return ev, true
	}
}

func inviteFailure(re *regexp.Regexp, reason string) func(string) (models.Event, bool) {
	return func(line string) (models.Event, bool) {
		ev, ok := player(re, models.EventInviteFailed)(line)
		if ok {
			ev.Reason = reason
		}
		return ev, ok
	}
}

func phrase(needle string, t models.EventType, reason string) func(string) (models.Event, bool) {
	return func(line string) (models.Event, bool) {
		if !strings.Contains(line, needle) {
			return models.Event{}, false
		}
		ev := models.NewEvent(t, line)
		ev.Reason = reason
		return ev, true
	}
}
