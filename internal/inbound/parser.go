// Package inbound receives email webhook payloads and turns them into
// updates. The parser is a deliberately trivial line splitter; anything it
// cannot read gets a format-error auto-reply instead of a guess.
package inbound

import "strings"

// ParsedUpdate holds the three free-text sections recovered from an inbound
// message, still in multi-line form.
type ParsedUpdate struct {
	Done    string
	WillDo  string
	Blocker string
}

// Parse splits message text into done / will-do / blocker sections by the
// leading marker of each line: "-" done, "+" will do, "*" blocker.
// ok is false when no line carries a marker.
func Parse(text string) (ParsedUpdate, bool) {
	var p ParsedUpdate
	ok := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 2 {
			continue
		}
		rest := strings.TrimSpace(line[1:])
		switch line[0] {
		case '-':
			p.Done = appendLine(p.Done, rest)
			ok = true
		case '+':
			p.WillDo = appendLine(p.WillDo, rest)
			ok = true
		case '*':
			p.Blocker = appendLine(p.Blocker, rest)
			ok = true
		}
	}
	return p, ok
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}
