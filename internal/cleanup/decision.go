package cleanup

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseDecision decodes a classification reply into a Decision. Parsing is
// deliberately two-stage: a direct JSON decode first, then a lenient pass
// that strips Markdown code fences and slices out the first {...} block.
// Category and label types are validated strictly; confidence is lenient.
func ParseDecision(raw string) (Decision, error) {
	data, ok := decodeObject(raw)
	if !ok {
		data, ok = extractObject(raw)
	}
	if !ok {
		return Decision{}, fmt.Errorf("%w: no JSON object in reply", ErrInvalidResponse)
	}

	category, _ := data["category"].(string)
	if !Category(category).Valid() {
		return Decision{}, fmt.Errorf("%w: category %q", ErrInvalidResponse, category)
	}

	var label string
	switch v := data["label"].(type) {
	case nil:
	case string:
		label = strings.TrimSpace(v)
	default:
		return Decision{}, fmt.Errorf("%w: label must be a string or null", ErrInvalidResponse)
	}

	return Decision{
		Category:   Category(category),
		Confidence: clampConfidence(data["confidence"]),
		Reason:     strings.TrimSpace(stringify(data["reason"])),
		Summary:    strings.TrimSpace(stringify(data["summary"])),
		Label:      label,
	}, nil
}

func decodeObject(raw string) (map[string]any, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false
	}
	return data, true
}

// extractObject strips code fences and decodes the first balanced-looking
// {...} slice. Pragmatic on purpose: models wrap JSON in prose and fences.
func extractObject(raw string) (map[string]any, bool) {
	s := stripFences(raw)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil, false
	}
	return decodeObject(s[start : end+1])
}

func stripFences(raw string) string {
	t := strings.TrimSpace(raw)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") {
		return t
	}
	t = t[3:]
	// Drop the optional language tag on the opening fence.
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

// clampConfidence accepts a JSON number or numeric string and clamps it to
// [0,1]. Anything else is treated as zero rather than rejected.
func clampConfidence(v any) float64 {
	var c float64
	switch n := v.(type) {
	case float64:
		c = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		c = parsed
	default:
		return 0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
