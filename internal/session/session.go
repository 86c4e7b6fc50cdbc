// Package session keeps dialogue state across stateless chat requests.
//
// It derives deterministic session keys ([DeriveKey]), stores the ordered
// turn list the model sees on every multi-turn call ([HistoryStore]), keeps a
// per player/NPC conversation log ([ConversationLog]) and an append-only list
// of relationship memories ([MemoryStore]). Memories are distilled from the
// log by an LLM ([LLMMemorySummariser]), on demand or periodically
// ([Consolidator]).
//
// All stores are thin layers over a namespaced [cache.Cache]. Every mutation
// is a read-modify-write of the whole value with no lock or compare-and-set
// around it: two concurrent writers to the same key can lose one update.
package session

import (
	"fmt"
	"time"
)

// Role identifies who spoke a turn.
type Role string

const (
	// RolePlayer marks a turn spoken by the human player.
	RolePlayer Role = "player"
	// RoleCharacter marks a turn produced for the non-player characters.
	RoleCharacter Role = "character"
)

// narratorLabel is the label rendered for turns not spoken by the player.
const narratorLabel = "You"

// timestampLayout renders turn timestamps in the conversation log.
const timestampLayout = "2006-01-02 15:04:05.000000"

// ConversationTurn is one utterance. Turns are never mutated once stored.
type ConversationTurn struct {
	Role      Role      `cbor:"role" json:"role"`
	Text      string    `cbor:"text" json:"text"`
	Timestamp time.Time `cbor:"ts" json:"timestamp"`
}

// Render formats the turn as a log line: "[timestamp]label: text", where the
// label is "player" for player turns and "You" otherwise.
func (t ConversationTurn) Render() string {
	label := narratorLabel
	if t.Role == RolePlayer {
		label = string(RolePlayer)
	}
	return fmt.Sprintf("[%s]%s: %s", t.Timestamp.Format(timestampLayout), label, t.Text)
}

// Option configures the stores in this package.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp new turns.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
