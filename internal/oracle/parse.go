package oracle

import (
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// Normalize upper-cases and trims an answer.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Label reads a single-token answer. The first non-empty line is normalized,
// stripped of surrounding punctuation and matched against allowed, first as a
// whole and then token by token. Any miss yields fallback.
func Label(raw string, allowed []string, fallback string) string {
	line := firstLine(raw)
	if line == "" {
		return fallback
	}
	byKey := make(map[string]string, len(allowed))
	for _, a := range allowed {
		byKey[Normalize(a)] = a
	}
	if v, ok := byKey[trimPunct(Normalize(line))]; ok {
		return v
	}
	for _, tok := range strings.FieldsFunc(Normalize(line), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	}) {
		if v, ok := byKey[tok]; ok {
			return v
		}
	}
	return fallback
}

// KeyValues reads "KEY: value" lines. Keys are normalized, values trimmed;
// lines without a colon are ignored.
func KeyValues(raw string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = trimPunct(Normalize(key))
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

// List splits a bracketed or bare comma-separated value into items. Quotes
// and whitespace around items are dropped, as are empty items and the
// literals NONE and N/A.
func List(value string) []string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "[")
	value = strings.TrimSuffix(value, "]")
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		part = strings.TrimSpace(part)
		switch Normalize(part) {
		case "", "NONE", "N/A":
			continue
		}
		out = append(out, part)
	}
	return out
}

// Strings reads a JSON array of strings embedded in raw. Only the span
// between the first '[' and the last ']' is considered, and it must be a
// valid array.
func Strings(raw string) ([]string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	fragment := raw[start : end+1]
	if !gjson.Valid(fragment) {
		return nil, false
	}
	res := gjson.Parse(fragment)
	if !res.IsArray() {
		return nil, false
	}
	var out []string
	for _, v := range res.Array() {
		if v.Type != gjson.String {
			return nil, false
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

func firstLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return (unicode.IsPunct(r) && r != '_') || unicode.IsSpace(r)
	})
}
