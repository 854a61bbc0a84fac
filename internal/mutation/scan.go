// Package mutation interprets structural edits embedded in chat replies and
// applies the ones that stay inside the subgraph of the chat's bound node.
package mutation

import (
	"encoding/json"
	"strings"
)

type Op string

const (
	OpRename   Op = "rename"
	OpAddChild Op = "add_child"
)

// Action is one edit requested by a reply. Target is the node to rename or
// the parent of the new child.
type Action struct {
	Op     Op     `json:"op"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

var calls = []struct {
	prefix string
	op     Op
}{
	{"RENAME(", OpRename},
	{"ADD_CHILD(", OpAddChild},
}

const (
	legacyOpen  = "<<<ACTION:"
	legacyClose = ">>>"
)

// stripMark stands in for a removed token until the prose is tidied.
const stripMark = '\x00'

// Scan extracts every action token from text and returns the remaining
// prose. Two forms are recognised:
//
//	RENAME(id, "label")   ADD_CHILD(id, "label")
//	<<<ACTION: {"type": "UPDATE_NODE"|"ADD_CHILD", "id"|"parentId": ..., "label": ...}>>>
//
// Fields are bare words or quoted strings with backslash escapes, so
// parentheses and commas inside a quoted label are part of the label. A
// token that is complete but malformed is removed from the prose and
// dropped. An unterminated token is left in the prose untouched.
func Scan(text string) (string, []Action) {
	var (
		b        strings.Builder
		actions  []Action
		stripped bool
	)
	for i := 0; i < len(text); {
		end, act, ok := matchToken(text, i)
		if end < 0 {
			b.WriteByte(text[i])
			i++
			continue
		}
		if ok {
			actions = append(actions, act)
		}
		b.WriteByte(stripMark)
		stripped = true
		i = end
	}
	prose := b.String()
	if stripped {
		prose = tidy(prose)
	}
	return prose, actions
}

// matchToken reports the end of a token starting at s[i], or -1 when none
// starts there. ok is false for a complete token whose payload is invalid.
func matchToken(s string, i int) (end int, act Action, ok bool) {
	rest := s[i:]
	if strings.HasPrefix(rest, legacyOpen) {
		j := strings.Index(rest, legacyClose)
		if j < 0 {
			return -1, Action{}, false
		}
		act, ok := parseLegacy(rest[len(legacyOpen):j])
		return i + j + len(legacyClose), act, ok
	}
	if i > 0 && isIdent(s[i-1]) {
		return -1, Action{}, false
	}
	for _, c := range calls {
		if !strings.HasPrefix(rest, c.prefix) {
			continue
		}
		fields, end, wellFormed := parseArgs(s, i+len(c.prefix))
		if end < 0 {
			return -1, Action{}, false
		}
		if !wellFormed || len(fields) != 2 {
			return end, Action{}, false
		}
		act := Action{Op: c.op, Target: fields[0], Label: fields[1]}
		return end, act, act.valid()
	}
	return -1, Action{}, false
}

func (a Action) valid() bool {
	if a.Target == "" || strings.ContainsAny(a.Target, " \t\r\n") {
		return false
	}
	if a.Op == OpRename && strings.TrimSpace(a.Label) == "" {
		return false
	}
	return true
}

func isIdent(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// parseArgs reads a comma-separated argument list starting at s[start] up
// to the matching ')'. end is the index after the ')', or -1 when the list
// is not closed on the same line. wellFormed is false when the list closes
// but its contents do not parse.
func parseArgs(s string, start int) (fields []string, end int, wellFormed bool) {
	j := start
	for {
		j = skipBlanks(s, j)
		if j >= len(s) || s[j] == '\n' {
			return nil, -1, false
		}
		var field string
		if q := s[j]; q == '"' || q == '\'' {
			var fb strings.Builder
			closed := false
			for j++; j < len(s) && s[j] != '\n'; j++ {
				c := s[j]
				if c == '\\' && j+1 < len(s) && s[j+1] != '\n' {
					j++
					fb.WriteByte(s[j])
					continue
				}
				if c == q {
					closed = true
					j++
					break
				}
				fb.WriteByte(c)
			}
			if !closed {
				return nil, -1, false
			}
			field = fb.String()
			j = skipBlanks(s, j)
			if j >= len(s) || s[j] == '\n' {
				return nil, -1, false
			}
			if s[j] != ',' && s[j] != ')' {
				// Junk after a quoted field: skip to the closing paren.
				k := strings.IndexByte(s[j:], ')')
				if k < 0 || strings.IndexByte(s[j:j+k], '\n') >= 0 {
					return nil, -1, false
				}
				return nil, j + k + 1, false
			}
		} else {
			depth := 0
			k := j
		bare:
			for ; k < len(s); k++ {
				switch s[k] {
				case '\n':
					return nil, -1, false
				case '(':
					depth++
				case ')':
					if depth == 0 {
						break bare
					}
					depth--
				case ',':
					if depth == 0 {
						break bare
					}
				}
			}
			if k >= len(s) {
				return nil, -1, false
			}
			field = strings.TrimSpace(s[j:k])
			j = k
		}
		fields = append(fields, field)
		if s[j] == ')' {
			return fields, j + 1, true
		}
		j++
	}
}

func skipBlanks(s string, j int) int {
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r') {
		j++
	}
	return j
}

type legacyAction struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
	Label    string `json:"label"`
}

func parseLegacy(payload string) (Action, bool) {
	var la legacyAction
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &la); err != nil {
		return Action{}, false
	}
	var a Action
	switch la.Type {
	case "UPDATE_NODE", "RENAME":
		a = Action{Op: OpRename, Target: la.ID, Label: la.Label}
	case "ADD_CHILD":
		a = Action{Op: OpAddChild, Target: la.ParentID, Label: la.Label}
	default:
		return Action{}, false
	}
	return a, a.valid()
}

// tidy collapses the blanks left around removed tokens. Only lines that
// held a token are touched; a line left empty by the removal is dropped.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.IndexByte(line, stripMark) < 0 {
			out = append(out, line)
			continue
		}
		line = strings.Join(strings.Fields(strings.ReplaceAll(line, string(stripMark), " ")), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
