package listeners

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *recorder) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestAutoAccept(t *testing.T) {
	bus := eventbus.New(zerolog.Nop())
	rec := &recorder{}
	a := NewAutoAccept(context.Background(), bus, rec, zerolog.Nop())

	ev := models.NewEvent(models.EventJoinRequest, "")
	ev.Player = "Steve"
	bus.Publish(ev)
	bus.Publish(models.NewEvent(models.EventMemberJoin, ""))

	assert.Eventually(t, func() bool { return len(rec.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"/g accept Steve"}, rec.Sent())

	a.Stop()
	bus.Publish(ev)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, rec.Sent(), 1)
}

func TestChatLog(t *testing.T) {
	var buf bytes.Buffer
	bus := eventbus.New(zerolog.Nop())
	c := NewChatLog(bus, zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer c.Stop()

	ev := models.NewEvent(models.EventGuildMessage, "Guild > Steve: hi")
	ev.Player = "Steve"
	bus.Publish(ev)

	assert.Contains(t, buf.String(), `"event":"guild_message"`)
	assert.Contains(t, buf.String(), `"player":"Steve"`)
}
