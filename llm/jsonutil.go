package llm

import (
	"regexp"
	"strings"
)

// fencedBlockPattern matches the body of a markdown code fence, with or
// without a language tag.
var fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")

// StripFences returns the body of the first markdown code fence in content,
// or content unchanged when it has none.
func StripFences(content string) string {
	if m := fencedBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

// ExtractJSONValue returns the span from the first '[' or '{' in content to
// the last matching ']' or '}'. It returns "" when no such span exists.
func ExtractJSONValue(content string) string {
	start := strings.IndexAny(content, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if content[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(content, closer)
	if end <= start {
		return ""
	}
	return content[start : end+1]
}

// ExtractJSON returns the cleaned span from the first '{' to the last '}'
// of a fenced or bare model response, or "" when there is none.
func ExtractJSON(content string) string {
	return extractSpan(StripFences(content), '{', '}')
}

// ExtractJSONArray returns the cleaned span from the first '[' to the last
// ']' of a fenced or bare model response, or "" when there is none.
func ExtractJSONArray(content string) string {
	return extractSpan(StripFences(content), '[', ']')
}

func extractSpan(body string, opener, closer byte) string {
	start := strings.IndexByte(body, opener)
	end := strings.LastIndexByte(body, closer)
	if start < 0 || end <= start {
		return ""
	}
	return CleanJSON(body[start : end+1])
}

// CleanJSON removes JavaScript-style comments and trailing commas, two
// artifacts models commonly produce.
func CleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	return stripTrailingCommas(strings.Join(cleaned, "\n"))
}

// stripTrailingCommas drops a comma followed only by whitespace and a closing
// bracket. Commas inside string values are kept.
//
//	[{"a": "x, ]"},]  →  [{"a": "x, ]"}]
func stripTrailingCommas(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == ',':
			j := i + 1
			for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
				j++
			}
			if j < len(raw) && (raw[j] == ']' || raw[j] == '}') {
				continue
			}
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

// stripLineComment removes a // comment from a JSON line, respecting string values.
//
//	"url": "http://example.com" // comment  → "url": "http://example.com"
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
