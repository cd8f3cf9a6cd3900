package config

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EventParam is one parameter of an event signature.
type EventParam struct {
	Type    string
	Name    string
	Indexed bool
}

// EventSignature is a parsed human-readable event signature such as
// "NewGravatar(uint256 id, address owner, string displayName, string imageUrl)".
type EventSignature struct {
	Name   string
	Params []EventParam
}

// ParseSignature parses "Name(type [indexed] [name], ...)". Tuple types
// such as "(uint256,address)[]" are kept verbatim.
func ParseSignature(s string) (EventSignature, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "event ")

	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return EventSignature{}, fmt.Errorf("event signature %q: expected Name(params)", s)
	}
	sig := EventSignature{Name: strings.TrimSpace(s[:open])}
	if !identRe.MatchString(sig.Name) {
		return EventSignature{}, fmt.Errorf("event signature %q: invalid event name %q", s, sig.Name)
	}

	parts, err := splitTopLevel(s[open+1 : len(s)-1])
	if err != nil {
		return EventSignature{}, fmt.Errorf("event signature %q: %w", s, err)
	}
	seen := make(map[string]bool)
	for i, part := range parts {
		p, err := parseParam(part)
		if err != nil {
			return EventSignature{}, fmt.Errorf("event signature %q: param %d: %w", s, i, err)
		}
		if p.Name != "" {
			if seen[p.Name] {
				return EventSignature{}, fmt.Errorf("event signature %q: duplicate param %q", s, p.Name)
			}
			seen[p.Name] = true
		}
		sig.Params = append(sig.Params, p)
	}
	return sig, nil
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	return append(parts, s[start:]), nil
}

func parseParam(s string) (EventParam, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EventParam{}, fmt.Errorf("empty parameter")
	}

	var p EventParam
	var rest string
	if strings.HasPrefix(s, "(") {
		end := matchingParen(s)
		if end < 0 {
			return EventParam{}, fmt.Errorf("unbalanced tuple type")
		}
		// Array suffixes stay attached to the tuple.
		j := end + 1
		for j < len(s) && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		p.Type, rest = s[:j], s[j:]
	} else {
		fields := strings.Fields(s)
		p.Type, rest = fields[0], strings.Join(fields[1:], " ")
	}

	fields := strings.Fields(rest)
	if len(fields) > 0 && fields[0] == "indexed" {
		p.Indexed = true
		fields = fields[1:]
	}
	switch len(fields) {
	case 0:
	case 1:
		if !identRe.MatchString(fields[0]) {
			return EventParam{}, fmt.Errorf("invalid name %q", fields[0])
		}
		p.Name = fields[0]
	default:
		return EventParam{}, fmt.Errorf("unexpected tokens %q", strings.Join(fields, " "))
	}
	return p, nil
}

func matchingParen(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// String renders the signature in its normalized human-readable form.
func (s EventSignature) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts := []string{p.Type}
		if p.Indexed {
			parts = append(parts, "indexed")
		}
		if p.Name != "" {
			parts = append(parts, p.Name)
		}
		params[i] = strings.Join(parts, " ")
	}
	return s.Name + "(" + strings.Join(params, ", ") + ")"
}

// Canonical is the type-only form, e.g. "Transfer(address,address,uint256)".
func (s EventSignature) Canonical() string {
	types := make([]string, len(s.Params))
	for i, p := range s.Params {
		types[i] = strings.ReplaceAll(p.Type, " ", "")
	}
	return s.Name + "(" + strings.Join(types, ",") + ")"
}
