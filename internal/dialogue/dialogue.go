// Package dialogue parses raw model output into a tagged multi-speaker
// script.
//
// The grammar is line based. Every retained line starts with a tag:
//
//	[CHAR(speaker)]text   a character utterance
//	[NARR(note)]text      a narrator line
//
// Models rarely honour the line structure, so [Parse] first repairs the
// text: code fences and escaped "\n" sequences are removed and a line break
// is inserted before tags that share a line with other content. Lines that
// still do not start with a well-formed tag are dropped and counted in
// [Script.Discarded].
package dialogue

import (
	"errors"
	"strings"
)

// Tag prefixes recognised at the start of a line.
const (
	CharPrefix = "[CHAR("
	NarrPrefix = "[NARR("

	tagClose = ")]"
)

// ErrNoDialogue is returned by [Parse] when no tagged line survives.
var ErrNoDialogue = errors.New("dialogue: no tagged lines in model output")

// Kind distinguishes character lines from narrator lines.
type Kind int

const (
	// KindCharacter is a [CHAR(...)] line.
	KindCharacter Kind = iota
	// KindNarrator is a [NARR(...)] line.
	KindNarrator
)

// String returns "CHAR" or "NARR".
func (k Kind) String() string {
	if k == KindNarrator {
		return "NARR"
	}
	return "CHAR"
}

// Line is one tagged line of a script.
type Line struct {
	Kind Kind
	// Speaker is the text between the tag parentheses, e.g. "Bob" or
	// "player1:Bob".
	Speaker string
	// Text is everything after the closing "]".
	Text string
}

// String renders the line back into tag form.
func (l Line) String() string {
	prefix := CharPrefix
	if l.Kind == KindNarrator {
		prefix = NarrPrefix
	}
	return prefix + l.Speaker + tagClose + l.Text
}

// Script is the structured result of [Parse].
type Script struct {
	Lines []Line
	// Discarded counts non-empty lines that carried no well-formed tag.
	Discarded int
}

// String renders the script as newline separated tagged lines.
func (s Script) String() string {
	parts := make([]string, len(s.Lines))
	for i, l := range s.Lines {
		parts[i] = l.String()
	}
	return strings.Join(parts, "\n")
}

// Speakers returns the distinct character speakers in order of first
// appearance.
func (s Script) Speakers() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range s.Lines {
		if l.Kind != KindCharacter {
			continue
		}
		if _, ok := seen[l.Speaker]; ok {
			continue
		}
		seen[l.Speaker] = struct{}{}
		out = append(out, l.Speaker)
	}
	return out
}

// Parse normalises raw model output and splits it into tagged lines.
//
// Parse is idempotent: parsing the String form of a returned Script yields
// the same Lines and zero Discarded. When no tagged line remains the
// returned Script still reports Discarded and the error is [ErrNoDialogue].
func Parse(raw string) (Script, error) {
	text := Normalize(raw)

	var s Script
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		line, ok := parseLine(ln)
		if !ok {
			s.Discarded++
			continue
		}
		s.Lines = append(s.Lines, line)
	}
	if len(s.Lines) == 0 {
		return s, ErrNoDialogue
	}
	return s, nil
}

// Normalize applies the textual repairs of [Parse] without filtering:
// fences and escaped newlines are removed, and tags are moved onto their
// own lines.
func Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.ReplaceAll(text, `\n`, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if strings.Count(text, CharPrefix) > 1 {
		text = strings.ReplaceAll(text, CharPrefix, "\n"+CharPrefix)
	}
	return breakBefore(text, "[NARR")
}

// breakBefore inserts a newline before every occurrence of tag that is not
// already at the start of a line.
func breakBefore(text, tag string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	prev := byte('\n')
	for {
		i := strings.Index(text, tag)
		if i < 0 {
			sb.WriteString(text)
			return sb.String()
		}
		if i > 0 {
			prev = text[i-1]
		}
		sb.WriteString(text[:i])
		if prev != '\n' {
			sb.WriteByte('\n')
		}
		sb.WriteString(tag)
		prev = tag[len(tag)-1]
		text = text[i+len(tag):]
	}
}

func parseLine(ln string) (Line, bool) {
	var kind Kind
	var rest string
	switch {
	case strings.HasPrefix(ln, CharPrefix):
		kind, rest = KindCharacter, ln[len(CharPrefix):]
	case strings.HasPrefix(ln, NarrPrefix):
		kind, rest = KindNarrator, ln[len(NarrPrefix):]
	default:
		return Line{}, false
	}
	end := strings.Index(rest, tagClose)
	if end < 0 {
		return Line{}, false
	}
	return Line{
		Kind:    kind,
		Speaker: rest[:end],
		Text:    strings.TrimSpace(rest[end+len(tagClose):]),
	}, true
}
