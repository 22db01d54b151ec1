package extraction

import (
	"errors"
	"regexp"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object found in model response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSONSpan pulls the JSON object out of free-form model output. A
// fenced code block wins; otherwise the first balanced {...} span is used.
func ExtractJSONSpan(text string) (string, error) {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); strings.HasPrefix(body, "{") {
			return body, nil
		}
	}
	return firstBraceSpan(text)
}

// firstBraceSpan scans from the first '{' tracking depth outside string
// literals. An unterminated object falls back to the last '}' so the parser
// reports the real syntax error.
func firstBraceSpan(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	end := strings.LastIndexByte(text, '}')
	if end <= start {
		return "", errNoJSONObject
	}
	return text[start : end+1], nil
}

// responseHead returns at most n bytes of s for diagnostics.
func responseHead(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
