package inference_engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoPayload is returned when no JSON object can be recovered from a response.
var ErrNoPayload = errors.New("no structured payload in response")

// ParseStrict decodes raw as exactly one JSON payload object. The object
// must carry a vulnerabilities or summary key.
func ParseStrict(raw string) (*NarrativePayload, error) {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "{") {
		return nil, fmt.Errorf("strict parse: %w", ErrNoPayload)
	}
	dec := json.NewDecoder(strings.NewReader(text))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("strict parse: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("strict parse: trailing data after payload")
	}
	if err := checkShape(fields); err != nil {
		return nil, fmt.Errorf("strict parse: %w", err)
	}
	var payload NarrativePayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("strict parse: %w", err)
	}
	return &payload, nil
}

// ErrWrongShape is returned for JSON objects that are not narrative payloads.
var ErrWrongShape = errors.New("object is not a narrative payload")

func checkShape(fields map[string]json.RawMessage) error {
	if vulns, ok := fields["vulnerabilities"]; ok {
		if v := bytes.TrimSpace(vulns); len(v) > 0 && v[0] != '[' && string(v) != "null" {
			return fmt.Errorf("%w: vulnerabilities is not a list", ErrWrongShape)
		}
		return nil
	}
	if _, ok := fields["summary"]; ok {
		return nil
	}
	return ErrWrongShape
}

// ParseLenient strips markdown fences and surrounding prose and decodes the
// first balanced JSON object that has the payload shape. Other objects, such
// as code echoed in prose or an element of a bare findings array, are skipped.
func ParseLenient(raw string) (*NarrativePayload, error) {
	text := stripFences(raw)
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchingBrace(text, start)
		if end < 0 {
			break
		}
		if payload, err := ParseStrict(text[start : end+1]); err == nil {
			return payload, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, ErrNoPayload
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "```"); i >= 0 {
		body := text[i+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		if strings.Contains(body, "{") {
			return body
		}
	}
	return text
}

// matchingBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings, or -1.
func matchingBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return i
			}
		}
	}
	return -1
}

// compact is used to keep repair prompts short when the raw output is valid JSON of the wrong shape.
func compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
