package gateway

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a reply contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON found in reply")

var fenceRe = regexp.MustCompile("```[A-Za-z0-9_-]*")

// StripFences removes markdown code fences (with or without a language tag).
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// ExtractJSON returns the first balanced JSON object or array in s. Braces
// inside string literals are ignored. An unterminated value is returned up
// to the end of s so that repair can still close it.
func ExtractJSON(s string) (string, error) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return s[start:], nil
}

// DecodeStrictJSON extracts the first JSON value from an untrusted reply
// and decodes it into v. Truncated or malformed JSON is an error.
func DecodeStrictJSON(reply string, v any) error {
	raw, err := ExtractJSON(StripFences(reply))
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

// DecodeJSON is DecodeStrictJSON with a repair pass when the strict decode
// fails. Only use it where a partially recovered value is acceptable.
func DecodeJSON(reply string, v any) error {
	raw, err := ExtractJSON(StripFences(reply))
	if err != nil {
		return err
	}
	origErr := json.Unmarshal([]byte(raw), v)
	if origErr == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return origErr
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return origErr
	}
	return nil
}
