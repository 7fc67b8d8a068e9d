package generative

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/c360studio/repograph/llm"
)

// ErrMalformedOutput is returned when a completion cannot be read as
// relations by either parse tier.
var ErrMalformedOutput = errors.New("malformed model output")

// Relation is one relation as reported by the model.
type Relation struct {
	Predicate  string      `json:"predicate"`
	Object     flexString  `json:"object"`
	Span       string      `json:"span,omitempty"`
	Confidence *flexNumber `json:"confidence,omitempty"`
}

// ParseRelations reads relations from completion text. It first parses the
// content as JSON directly. Failing that it tries, after removing comments
// and trailing commas, the span from the first '[' or '{' to the last
// matching bracket, then the outermost array, then the outermost object.
func ParseRelations(content string) ([]Relation, error) {
	rels, err := decodeRelations([]byte(strings.TrimSpace(content)))
	if err == nil {
		return rels, nil
	}

	candidates := recoveryCandidates(content)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no JSON value in %q", ErrMalformedOutput, preview(content))
	}
	for _, candidate := range candidates {
		if rels, err = decodeRelations([]byte(candidate)); err == nil {
			return rels, nil
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
}

// recoveryCandidates lists the distinct non-empty JSON spans of content in
// the order they are tried.
func recoveryCandidates(content string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	if v := llm.ExtractJSONValue(llm.StripFences(content)); v != "" {
		add(llm.CleanJSON(v))
	}
	add(llm.ExtractJSONArray(content))
	add(llm.ExtractJSON(content))
	return out
}

// decodeRelations accepts an array of relations, a single relation object,
// or an object holding a "relations" array.
func decodeRelations(raw []byte) ([]Relation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty content")
	}

	switch raw[0] {
	case '[':
		var rels []Relation
		if err := json.Unmarshal(raw, &rels); err != nil {
			return nil, err
		}
		return rels, nil
	case '{':
		var wrapped struct {
			Relations []Relation `json:"relations"`
		}
		if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Relations != nil {
			return wrapped.Relations, nil
		}
		var rel Relation
		if err := json.Unmarshal(raw, &rel); err != nil {
			return nil, err
		}
		return []Relation{rel}, nil
	default:
		return nil, fmt.Errorf("unexpected leading %q", raw[0])
	}
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("object must be a string or number: %s", b)
	}
	*s = flexString(n.String())
	return nil
}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("confidence is not numeric: %s", b)
	}
	*f = flexNumber(v)
	return nil
}

func preview(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
