package classifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

func TestClassify_Vocabulary(t *testing.T) {
	tests := []struct {
		line  string
		want  models.EventType
		check func(t *testing.T, ev models.Event)
	}{
		{
			line: "Guild > [MVP+] Steve [Officer]: hello there",
			want: models.EventGuildMessage,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
				assert.Equal(t, "hello there", ev.Body)
			},
		},
		{
			line: "Officer > Alex: secret plans",
			want: models.EventOfficerMessage,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Alex", ev.Player)
				assert.Equal(t, "secret plans", ev.Body)
			},
		},
		{line: "Guild > Steve joined.", want: models.EventMemberOnline},
		{line: "Guild > Steve left.", want: models.EventMemberOffline},
		{line: "Unknown command. Type \"/help\" for help.", want: models.EventPong},
		{
			line: "[VIP] Steve joined the guild!",
			want: models.EventMemberJoin,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
			},
		},
		{line: "Steve left the guild!", want: models.EventMemberLeave},
		{
			line: "[MVP] Steve was promoted from Member to Officer",
			want: models.EventMemberPromote,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
				assert.Equal(t, "Member", ev.FromRank)
				assert.Equal(t, "Officer", ev.ToRank)
			},
		},
		{
			line: "Steve was demoted from Officer to Member",
			want: models.EventMemberDemote,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Member", ev.ToRank)
			},
		},
		{
			line: "Steve was kicked from the guild by [MVP++] Alex!",
			want: models.EventMemberKick,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
				assert.Equal(t, "Alex", ev.Actor)
			},
		},
		{line: "Steve was kicked from the guild!", want: models.EventMemberKick},
		{
			line: "Disabled guild join/leave notifications!",
			want: models.EventNotificationsToggled,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.ReasonDisabled, ev.Reason)
			},
		},
		{
			line: "You cannot say the same message twice!",
			want: models.EventMessageBlocked,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.ReasonDuplicateMessage, ev.Reason)
			},
		},
		{
			line: "You invited [VIP+] Steve to your guild. They have 5 minutes to accept.",
			want: models.EventInviteSent,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
			},
		},
		{
			line: "You sent an offline invite to Steve! They will have 5 minutes to accept once they come online!",
			want: models.EventInviteSent,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
				assert.Equal(t, "offline", ev.Reason)
			},
		},
		{
			line: "Steve is already in another guild!",
			want: models.EventInviteFailed,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.ReasonInGuild, ev.Reason)
			},
		},
		{
			line: "You cannot invite this player to your guild!",
			want: models.EventInviteFailed,
			check: func(t *testing.T, ev models.Event) {
				assert.Empty(t, ev.Player)
				assert.Equal(t, models.ReasonInvitesOff, ev.Reason)
			},
		},
		{
			line: "You've already invited Steve to your guild! Wait for them to accept!",
			want: models.EventInviteFailed,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.ReasonAlreadyInvited, ev.Reason)
			},
		},
		{line: "[MVP+] Steve has requested to join the Guild!", want: models.EventJoinRequest},
		{line: "Your guild is full!", want: models.EventInviteFailed},
		{
			line: "[MVP+] Alex has muted the guild chat for 1h",
			want: models.EventChatMuted,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Alex", ev.Actor)
				assert.Equal(t, "1h", ev.Duration)
			},
		},
		{line: "Alex has unmuted the guild chat!", want: models.EventChatUnmuted},
		{
			line: "[MVP+] Alex has muted [VIP] Steve for 1d",
			want: models.EventMemberMuted,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Alex", ev.Actor)
				assert.Equal(t, "Steve", ev.Player)
				assert.Equal(t, "1d", ev.Duration)
			},
		},
		{
			line: "Alex has unmuted Steve",
			want: models.EventMemberUnmuted,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
			},
		},
		{
			line: "You're currently guild muted for 29m!",
			want: models.EventMessageBlocked,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, models.ReasonGuildMuted, ev.Reason)
				assert.Equal(t, "29m", ev.Duration)
			},
		},
		{line: "Your mute will expire in 6d 23h 59m", want: models.EventBotMuted},
		{
			line: "Mute ID: #5f2c91ab",
			want: models.EventBotMuted,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "#5f2c91ab", ev.Reason)
				assert.Empty(t, ev.Duration)
			},
		},
		{
			line: "Click here to accept or type /guild accept Steve!",
			want: models.EventInviteReceived,
			check: func(t *testing.T, ev models.Event) {
				assert.Equal(t, "Steve", ev.Player)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			c := New(WithSelf("BridgeBot"))
			ev, ok := c.Classify(tt.line)
			require.True(t, ok, "expected an event")
			assert.Equal(t, tt.want, ev.Type)
			assert.Equal(t, tt.line, ev.Raw)
			assert.NotEmpty(t, ev.ID)
			assert.False(t, ev.EmittedAt.IsZero())
			if tt.check != nil {
				tt.check(t, ev)
			}
		})
	}
}

func TestClassify_UnrecognizedLine(t *testing.T) {
	c := New()
	_, ok := c.Classify("Welcome to Hypixel!")
	assert.False(t, ok)
	assert.Equal(t, OutcomeIgnored, c.LastOutcome())
}

func TestClassify_SelfSuppressed(t *testing.T) {
	c := New(WithSelf("BridgeBot"))

	for _, line := range []string{
		"Guild > BridgeBot: relayed message",
		"Guild > [VIP] bridgebot [Bot]: relayed message",
		"Officer > BridgeBot: relayed message",
		"Guild > BridgeBot joined.",
	} {
		_, ok := c.Classify(line)
		assert.False(t, ok, line)
		assert.Equal(t, OutcomeSuppressed, c.LastOutcome(), line)
	}

	ev, ok := c.Classify("Guild > Steve: hi BridgeBot")
	require.True(t, ok)
	assert.Equal(t, "Steve", ev.Player)
}

func TestClassify_ChatBeatsLaterRecognizers(t *testing.T) {
	c := New()
	ev, ok := c.Classify("Guild > Steve: Alex was kicked from the guild!")
	require.True(t, ok)
	assert.Equal(t, models.EventGuildMessage, ev.Type)
}

func TestClassify_BlockClosure(t *testing.T) {
	for _, k := range []int{0, 1, 5, 40} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			c := New()
			_, ok := c.Classify("Guild Name: Knights")
			require.False(t, ok)

			var body []string
			for i := 0; i < k; i++ {
				line := fmt.Sprintf("line %d: Steve joined the guild!", i)
				body = append(body, line)
				_, ok := c.Classify(line)
				require.False(t, ok, "buffered lines must not emit")
			}

			ev, ok := c.Classify(Sentinel)
			require.True(t, ok)
			assert.Equal(t, models.EventBlock, ev.Type)
			assert.Equal(t, "Guild Name: Knights", ev.Body)
			assert.Equal(t, strings.Join(body, "\n"), ev.Text)
			assert.Equal(t, "list", ev.Reason)
			assert.False(t, c.State().Active)
		})
	}
}

func TestClassify_BlockWithoutSentinelNeverEmits(t *testing.T) {
	c := New()
	c.Classify("                    Top Guild Experience")
	for i := 0; i < 100; i++ {
		_, ok := c.Classify(fmt.Sprintf("%d. Steve 1,000 Guild Experience", i))
		require.False(t, ok)
	}
	state := c.State()
	assert.True(t, state.Active)
	assert.Len(t, state.Lines, 101)
}

func TestClassify_SentinelOutsideBlock(t *testing.T) {
	c := New()
	_, ok := c.Classify(Sentinel)
	assert.False(t, ok)
	assert.Equal(t, OutcomeIgnored, c.LastOutcome())
}

func TestClassify_RestartOnNewBlockStart(t *testing.T) {
	c := New()
	c.Classify("Guild Name: Knights")
	c.Classify("first block body")
	c.Classify("Created: 01/01/2020")
	c.Classify("second block body")

	ev, ok := c.Classify(Sentinel)
	require.True(t, ok)
	assert.Equal(t, "Created: 01/01/2020", ev.Body)
	assert.Equal(t, "second block body", ev.Text)
	assert.Equal(t, "info", ev.Reason)
}

func TestClassify_ChannelLinesEmitWhileBuffering(t *testing.T) {
	c := New()
	c.Classify("Guild Name: Knights")

	ev, ok := c.Classify("Guild > Steve: still talking")
	require.True(t, ok)
	assert.Equal(t, models.EventGuildMessage, ev.Type)

	// Non-channel significant lines stay buffer-only.
	_, ok = c.Classify("Alex joined the guild!")
	assert.False(t, ok)

	block, ok := c.Classify(Sentinel)
	require.True(t, ok)
	assert.Equal(t, "Guild > Steve: still talking\nAlex joined the guild!", block.Text)
}

func TestClassify_MaxBufferedLinesAbandonsBlock(t *testing.T) {
	c := New(WithMaxBufferedLines(3))
	c.Classify("Guild Name: Knights")
	c.Classify("a")
	c.Classify("b")
	c.Classify("c")
	assert.Equal(t, OutcomeAbandoned, c.LastOutcome())
	assert.False(t, c.State().Active)

	_, ok := c.Classify(Sentinel)
	assert.False(t, ok)
}

func TestClassify_OrderMatchesIndependentClassification(t *testing.T) {
	lines := []string{
		"Guild > Steve: one",
		"Steve joined the guild!",
		"noise",
		"Officer > Alex: two",
		"Alex was promoted from Member to Officer",
		"Your guild is full!",
	}

	c := New()
	var got []models.EventType
	for _, line := range lines {
		if ev, ok := c.Classify(line); ok {
			got = append(got, ev.Type)
		}
	}

	var want []models.EventType
	for _, line := range lines {
		if ev, ok := New().Classify(line); ok {
			want = append(want, ev.Type)
		}
	}
	assert.Equal(t, want, got)
	assert.Len(t, got, 5)
}

func TestStep_IsPure(t *testing.T) {
	rules := Rules{BlockStart: IsBlockStart, Recognizers: DefaultRecognizers()}

	start, _, outcome := Step(BufferState{}, "Guild Name: Knights", rules)
	assert.Equal(t, OutcomeBuffered, outcome)
	assert.True(t, start.Active)

	next, _, _ := Step(start, "body", rules)
	assert.Equal(t, []string{"Guild Name: Knights", "body"}, next.Lines)

	done, ev, outcome := Step(next, Sentinel, rules)
	assert.Equal(t, OutcomeEvent, outcome)
	assert.Equal(t, "body", ev.Text)
	assert.Equal(t, BufferState{}, done)
}

func TestChannelSubject(t *testing.T) {
	assert.Equal(t, "Steve", ChannelSubject("Guild > [MVP+] Steve [Tag]: hi"))
	assert.Equal(t, "Alex", ChannelSubject("Officer > Alex: hi"))
	assert.Equal(t, "", ChannelSubject("Steve joined the guild!"))
}
