package action

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"forge/internal/logging"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

var validKinds = map[Kind]bool{
	KindCreate: true, KindEdit: true, KindDelete: true, KindRun: true, KindMessage: true,
}

// Parse decodes a raw model reply into actions. Local models wrap JSON
// in prose, emit literal newlines inside string values, and leave
// trailing commas, so decoding tries progressively more forgiving
// strategies. Parse never fails: when nothing decodes, the raw text
// becomes a single message action so the user still sees the reply.
func Parse(raw string, logger *log.Logger) Response {
	trimmed := strings.TrimSpace(raw)

	if resp, ok := decode(trimmed); ok {
		return resp
	}

	// Widest brace span, for JSON surrounded by prose.
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if resp, ok := decode(candidate); ok {
			return resp
		}
		if resp, ok := decode(sanitize(candidate)); ok {
			logging.DevLog(logger, "parse: recovered response after sanitizing")
			return resp
		}
	}

	if m := fencedBlock.FindStringSubmatch(trimmed); m != nil {
		if resp, ok := decode(m[1]); ok {
			return resp
		}
		if resp, ok := decode(sanitize(m[1])); ok {
			return resp
		}
	}

	logging.ErrorLog(logger, "parse: no actions found in response (%d chars), falling back to message", len(raw))
	return Response{Actions: []Action{{Kind: KindMessage, Content: trimmed}}}
}

// decode unmarshals one candidate and validates each action. Invalid
// actions are dropped with a warning, never the whole batch. An explicit
// empty actions array is a valid response meaning "nothing to do".
func decode(s string) (Response, bool) {
	var envelope struct {
		Actions *[]Action `json:"actions"`
	}
	if err := json.Unmarshal([]byte(s), &envelope); err != nil {
		return Response{}, false
	}
	if envelope.Actions == nil {
		return Response{}, false
	}
	resp := Response{Actions: make([]Action, 0, len(*envelope.Actions))}
	for _, a := range *envelope.Actions {
		a.Kind = Kind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
		if reason := invalid(a); reason != "" {
			resp.Warnings = append(resp.Warnings, reason)
			continue
		}
		resp.Actions = append(resp.Actions, a)
	}
	return resp, true
}

func invalid(a Action) string {
	if !validKinds[a.Kind] {
		return fmt.Sprintf("dropped action with unknown type %q", a.Kind)
	}
	switch a.Kind {
	case KindCreate, KindEdit, KindDelete, KindRun:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Sprintf("dropped %s action without a target", a.Kind)
		}
	}
	if a.Kind == KindMessage && strings.TrimSpace(a.Content) == "" {
		return "dropped empty message action"
	}
	return ""
}

// sanitize repairs the usual local-model JSON damage: raw control
// characters inside string values, single-quoted strings, comment
// lines, and trailing commas before a closing bracket.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	var quote rune
	escaped := false
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if quote != 0 {
			if escaped {
				b.WriteRune(ch)
				escaped = false
				continue
			}
			switch {
			case ch == '\\':
				b.WriteRune(ch)
				escaped = true
			case ch == quote:
				quote = 0
				b.WriteRune('"')
			case ch == '"':
				b.WriteString(`\"`)
			case ch < 0x20:
				switch ch {
				case '\n':
					b.WriteString(`\n`)
				case '\r':
					b.WriteString(`\r`)
				case '\t':
					b.WriteString(`\t`)
				}
				// Other control characters are dropped.
			default:
				b.WriteRune(ch)
			}
			continue
		}
		switch {
		case ch == '"' || ch == '\'':
			quote = ch
			b.WriteRune('"')
		case ch == '/' && i+1 < len(runes) && runes[i+1] == '/':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		case ch == '#':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			b.WriteRune('\n')
		default:
			b.WriteRune(ch)
		}
	}
	return trailingComma.ReplaceAllString(b.String(), "$1")
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)
