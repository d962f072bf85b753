package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/correlator"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/eventbus"
	"github.com/SkyKings-Network/GuildBridgeBot/internal/rpc"
)

// usernameRegex matches valid game account names.
var usernameRegex = regexp.MustCompile(`^\w{1,16}$`)

// Upstream is the game connection commands are written to.
type Upstream interface {
	correlator.Sender
	Ready() bool
}

// Remote issues requests to peer processes.
type Remote interface {
	Request(ctx context.Context, endpoint string, data any) (json.RawMessage, error)
}

// Pinger checks a backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Handler needs. Remote, Transport and Bus may
// be nil.
type Deps struct {
	Correlator *correlator.Correlator
	Invites    *correlator.InviteQueue
	Upstream   Upstream
	Registry   *rpc.Registry
	Remote     Remote
	Transport  Pinger
	// Bus feeds the recent activity shown by Stats.
	Bus *eventbus.Bus
	// Timeout is the confirmation timeout for guild commands.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Handler contains shared dependencies for guild endpoints and HTTP handlers.
type Handler struct {
	corr      *correlator.Correlator
	invites   *correlator.InviteQueue
	upstream  Upstream
	registry  *rpc.Registry
	remote    Remote
	transport Pinger
	activity  *activity
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := &Handler{
		corr:      d.Correlator,
		invites:   d.Invites,
		upstream:  d.Upstream,
		registry:  d.Registry,
		remote:    d.Remote,
		transport: d.Transport,
		timeout:   timeout,
		logger:    d.Logger.With().Str("component", "handlers").Logger(),
	}
	if d.Bus != nil {
		h.activity = trackActivity(d.Bus)
	}
	return h
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeText trims text, drops control characters and newlines, and limits
// it to max runes so one request cannot smuggle a second command.
func sanitizeText(text string, max int) string {
	text = strings.TrimSpace(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	if r := []rune(text); len(r) > max {
		text = string(r[:max])
	}

	return text
}

func isValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}
