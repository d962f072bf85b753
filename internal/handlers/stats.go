package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

const recentEvents = 5

// EventPreview represents a recently classified event.
type EventPreview struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Player    string `json:"player,omitempty"`
	Body      string `json:"body,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// InviteStats describes the invite worker.
type InviteStats struct {
	State  string `json:"state"`
	Queued int    `json:"queued"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	UpstreamReady   bool           `json:"upstream_ready"`
	Endpoints       int            `json:"endpoints"`
	PendingRequests int            `json:"pending_requests"`
	Subscribers     int            `json:"subscribers"`
	Invites         *InviteStats   `json:"invites,omitempty"`
	LastActivity    string         `json:"last_activity"`
	RecentEvents    []EventPreview `json:"recent_events"`
}

// activity remembers the last few events seen on the bus.
type activity struct {
	bus *eventbus.Bus

	mu     sync.Mutex
	last   time.Time
	recent []EventPreview
}

func trackActivity(bus *eventbus.Bus) *activity {
	a := &activity{bus: bus}
	bus.Subscribe(a.observe)
	return a
}

func (a *activity) observe(ev models.Event) {
	body := ev.Body
	if len(body) > 200 {
		body = body[:197] + "..."
	}
	p := EventPreview{
		ID:        ev.ID,
		Type:      ev.Type.String(),
		Player:    ev.Player,
		Body:      body,
		Timestamp: ev.EmittedAt.UnixMilli(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = ev.EmittedAt
	a.recent = append(a.recent, p)
	if len(a.recent) > recentEvents {
		a.recent = a.recent[len(a.recent)-recentEvents:]
	}
}

func (a *activity) snapshot() (time.Time, []EventPreview) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]EventPreview, len(a.recent))
	// newest first
	for i, p := range a.recent {
		out[len(a.recent)-1-i] = p
	}
	return a.last, out
}

// Stats reports live bridge counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UpstreamReady: h.upstream != nil && h.upstream.Ready(),
		LastActivity:  "no activity yet",
		RecentEvents:  []EventPreview{},
	}
	if h.registry != nil {
		resp.Endpoints = len(h.registry.Endpoints())
	}
	if p, ok := h.remote.(interface{ PendingCount() int }); ok {
		resp.PendingRequests = p.PendingCount()
	}
	if h.invites != nil {
		resp.Invites = &InviteStats{State: h.invites.State().String(), Queued: h.invites.Len()}
	}
	if h.activity != nil {
		resp.Subscribers = h.activity.bus.SubscriberCount()
		last, recent := h.activity.snapshot()
		if !last.IsZero() {
			resp.LastActivity = formatTimeAgo(last)
		}
		resp.RecentEvents = recent
	}

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return strconv.Itoa(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return strconv.Itoa(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return strconv.Itoa(days) + " days ago"
	}
}
