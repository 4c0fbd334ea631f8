// Package llmjson extracts JSON documents from model output, which routinely
// arrives wrapped in markdown fences or surrounded by prose.
package llmjson

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the first JSON object found in s, unwrapping markdown code
// fences when present. Returns "" when no parseable object is found.
func Extract(s string) string {
	s = strings.TrimSpace(s)

	// Fenced block first: ```json ... ``` or plain ``` ... ```
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// Drop the language tag line ("json", "JSON", or empty).
			tag := strings.TrimSpace(rest[:nl])
			if tag == "" || strings.EqualFold(tag, "json") {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			if obj := firstObject(rest[:end]); obj != "" {
				return obj
			}
		}
	}

	return firstObject(s)
}

// firstObject scans for the first balanced {...} and validates it.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if gjson.Valid(candidate) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}

// Field returns the string value of a top-level field in the first JSON
// object found in s. ok is false when the object or field is absent.
func Field(s, name string) (value string, ok bool) {
	obj := Extract(s)
	if obj == "" {
		return "", false
	}
	res := gjson.Get(obj, name)
	if !res.Exists() {
		return "", false
	}
	return res.String(), true
}
