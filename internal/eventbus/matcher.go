package eventbus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SkyKings-Network/GuildBridgeBot/internal/models"
)

// Matcher decides whether an event satisfies a wait.
type Matcher interface {
	Match(models.Event) bool
	String() string
}

// FieldMatcher matches an event type plus case-insensitive field equality.
// Fields names are those accepted by models.Event.Field.
type FieldMatcher struct {
	Type   models.EventType
	Fields map[string]string
}

// Match implements Matcher.
func (m FieldMatcher) Match(ev models.Event) bool {
	if ev.Type != m.Type {
		return false
	}
	for name, want := range m.Fields {
		if !strings.EqualFold(ev.Field(name), want) {
			return false
		}
	}
	return true
}

func (m FieldMatcher) String() string {
	if len(m.Fields) == 0 {
		return m.Type.String()
	}
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m.Fields[k]
	}
	return fmt.Sprintf("%s{%s}", m.Type, strings.Join(parts, ","))
}

// Is matches any event of type t.
func Is(t models.EventType) FieldMatcher {
	return FieldMatcher{Type: t}
}

// ForPlayer matches events of type t whose player is name.
func ForPlayer(t models.EventType, name string) FieldMatcher {
	return FieldMatcher{Type: t, Fields: map[string]string{models.FieldPlayer: name}}
}

type anyOf []Matcher

// AnyOf matches when any of ms matches.
func AnyOf(ms ...Matcher) Matcher {
	return anyOf(ms)
}

func (a anyOf) Match(ev models.Event) bool {
	for _, m := range a {
		if m.Match(ev) {
			return true
		}
	}
	return false
}

func (a anyOf) String() string {
	parts := make([]string, len(a))
	for i, m := range a {
		parts[i] = m.String()
	}
	return "any(" + strings.Join(parts, "|") + ")"
}

// MatcherFunc adapts a predicate. Name is used in logs.
type MatcherFunc struct {
	Name string
	Fn   func(models.Event) bool
}

func (f MatcherFunc) Match(ev models.Event) bool { return f.Fn(ev) }

func (f MatcherFunc) String() string { return f.Name }
