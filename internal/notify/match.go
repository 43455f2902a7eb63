package notify

import (
	"fmt"
	"strings"
)

// pattern is a parsed subscription pattern. Patterns already match by
// prefix, so a trailing "#" adds nothing and is dropped while parsing:
// "DATA/p" and "DATA/p/#" are the same pattern.
type pattern struct {
	segments []string
}

func parsePattern(s string) (pattern, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return pattern{}, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	segs := strings.Split(s, "/")
	p := pattern{}
	for i, seg := range segs {
		switch {
		case seg == "":
			return pattern{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, s)
		case seg == "#":
			if i != len(segs)-1 {
				return pattern{}, fmt.Errorf("%w: '#' must be last in %q", ErrInvalidPattern, s)
			}
		default:
			p.segments = append(p.segments, seg)
		}
	}
	return p, nil
}

// matches reports whether topic is covered by the pattern. Patterns match by
// segment prefix, so "DATA/sensor1" covers "DATA/sensor1/env/temp".
func (p pattern) matches(topic string) bool {
	parts := strings.Split(topic, "/")
	if len(parts) < len(p.segments) {
		return false
	}
	for i, seg := range p.segments {
		if seg != "*" && seg != parts[i] {
			return false
		}
	}
	return true
}

// Match reports whether topic is covered by the subscription pattern. Invalid
// patterns match nothing.
func Match(patternStr, topic string) bool {
	p, err := parsePattern(patternStr)
	if err != nil {
		return false
	}
	return p.matches(topic)
}
