// Package classifier turns the upstream line stream into typed domain events.
//
// The classifier is synchronous and owns a single BufferState. Multi-line
// command responses (guild list, top, info) are collected between a block start
// line and the sentinel line and emitted as one EventBlock.
package classifier

import (
	"regexp"
	"strings"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// Sentinel closes a buffered block. It must match the whole line.
const Sentinel = "-----------------------------------------------------"

// BufferState is the only state carried between lines.
type BufferState struct {
	Active bool
	Lines  []string
}

// Recognizer matches one kind of line.
type Recognizer struct {
	Name string
	// WhileBuffering marks lines that are still evaluated (and emitted) while a
	// block is being buffered. They are appended to the block as well.
	WhileBuffering bool
	Match          func(line string) (models.Event, bool)
}

// Rules configures Step.
type Rules struct {
	// Self is the local actor's name. Channel lines spoken by Self are dropped.
	Self        string
	Sentinel    string
	BlockStart  func(line string) bool
	Recognizers []Recognizer
	// MaxBuffered abandons a block that grows past this many lines. 0 disables.
	MaxBuffered int
}

// Outcome labels what Step did with a line, for metrics and debug logs.
type Outcome string

const (
	OutcomeEvent      Outcome = "event"
	OutcomeBuffered   Outcome = "buffered"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeAbandoned  Outcome = "abandoned"
)

// Step applies one line to state. The returned state supersedes the argument;
// its Lines may share backing storage with the input.
func Step(state BufferState, line string, rules Rules) (BufferState, models.Event, Outcome) {
	if rules.Self != "" && strings.EqualFold(ChannelSubject(line), rules.Self) {
		return state, models.Event{}, OutcomeSuppressed
	}

	if rules.BlockStart != nil && rules.BlockStart(line) {
		// A start while already buffering abandons the previous block.
		return BufferState{Active: true, Lines: []string{line}}, models.Event{}, OutcomeBuffered
	}

	if state.Active {
		if line == rules.sentinel() {
			return BufferState{}, blockEvent(state.Lines), OutcomeEvent
		}
		state.Lines = append(state.Lines, line)
		if rules.MaxBuffered > 0 && len(state.Lines) > rules.MaxBuffered {
			return BufferState{}, models.Event{}, OutcomeAbandoned
		}
		r, ev, ok := rules.first(line)
		if ok && r.WhileBuffering {
			return state, ev, OutcomeEvent
		}
		return state, models.Event{}, OutcomeBuffered
	}

	if _, ev, ok := rules.first(line); ok {
		return state, ev, OutcomeEvent
	}
	return state, models.Event{}, OutcomeIgnored
}

func (r Rules) sentinel() string {
	if r.Sentinel == "" {
		return Sentinel
	}
	return r.Sentinel
}

func (r Rules) first(line string) (Recognizer, models.Event, bool) {
	for _, rec := range r.Recognizers {
		if ev, ok := rec.Match(line); ok {
			return rec, ev, true
		}
	}
	return Recognizer{}, models.Event{}, false
}

// blockEvent builds the EventBlock for a finished buffer. The start line is
// kept in Body and the lines that followed it are joined into Text.
func blockEvent(lines []string) models.Event {
	header := ""
	rest := lines
	if len(lines) > 0 {
		header = lines[0]
		rest = lines[1:]
	}
	text := strings.Join(rest, "\n")
	ev := models.NewEvent(models.EventBlock, header)
	ev.Body = header
	ev.Text = text
	ev.Reason = blockKind(header)
	return ev
}

func blockKind(header string) string {
	switch {
	case strings.HasPrefix(header, "Guild Name: "):
		return "list"
	case strings.Contains(header, "Top Guild Experience"):
		return "top"
	case strings.HasPrefix(header, "Created: "):
		return "info"
	}
	return ""
}

var channelSubject = regexp.MustCompile(`^(?:Guild|Officer) > (?:\[[^\]]+\] )?(\w+)`)

// ChannelSubject returns the speaker of a guild or officer channel line, or "".
func ChannelSubject(line string) string {
	m := channelSubject.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	return m[1]
}

// Classifier holds the buffer state for one upstream stream.
// It is not safe for concurrent use; feed it from a single goroutine.
type Classifier struct {
	rules Rules
	state BufferState
	last  Outcome
}

// Option configures a Classifier.
type Option func(*Rules)

// WithSelf sets the local actor name whose channel lines are dropped.
func WithSelf(name string) Option {
	return func(r *Rules) { r.Self = name }
}

// WithMaxBufferedLines bounds the size of a single block.
func WithMaxBufferedLines(n int) Option {
	return func(r *Rules) { r.MaxBuffered = n }
}

// WithRecognizers replaces the default recognizer table.
func WithRecognizers(recs []Recognizer) Option {
	return func(r *Rules) { r.Recognizers = recs }
}

// New creates a Classifier with the default guild vocabulary.
func New(opts ...Option) *Classifier {
	rules := Rules{
		Sentinel:    Sentinel,
		BlockStart:  IsBlockStart,
		Recognizers: DefaultRecognizers(),
	}
	for _, opt := range opts {
		opt(&rules)
	}
	return &Classifier{rules: rules}
}

// Classify consumes one line and returns the event it produced, if any.
func (c *Classifier) Classify(line string) (models.Event, bool) {
	var ev models.Event
	c.state, ev, c.last = Step(c.state, line, c.rules)
	return ev, c.last == OutcomeEvent
}

// LastOutcome reports what the previous Classify call did.
func (c *Classifier) LastOutcome() Outcome {
	return c.last
}

// State returns a copy of the current buffer state.
func (c *Classifier) State() BufferState {
	lines := make([]string, len(c.state.Lines))
	copy(lines, c.state.Lines)
	return BufferState{Active: c.state.Active, Lines: lines}
}

// Reset drops any partially buffered block.
func (c *Classifier) Reset() {
	c.state = BufferState{}
}
