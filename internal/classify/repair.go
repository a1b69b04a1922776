package classify

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"memento/internal/errors"
)

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

// CleanResponse strips ANSI escape sequences and code fences from a model
// response, leaving the payload the passes actually want.
func CleanResponse(raw string) string {
	cleaned := ansiPattern.ReplaceAllString(raw, "")
	if match := fencePattern.FindStringSubmatch(cleaned); match != nil {
		cleaned = match[1]
	} else {
		cleaned = strings.ReplaceAll(cleaned, "```", "")
	}
	return strings.TrimSpace(cleaned)
}

// ExtractJSON slices the response between the first '{' and the last '}' so
// stray prose around a single top-level object does not break parsing.
func ExtractJSON(raw string) (string, bool) {
	cleaned := CleanResponse(raw)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return "", false
	}
	return cleaned[start : end+1], true
}

// ParseLooseJSON parses a "mostly JSON" model response into v: clean, slice
// to the outermost object, parse, and on failure run the payload through
// jsonrepair before giving up.
func ParseLooseJSON(raw string, v any) error {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return errors.Upstreamf(nil, "response contains no JSON object")
	}
	if err := json.Unmarshal([]byte(payload), v); err == nil {
		return nil
	}
	repaired, repairErr := jsonrepair.JSONRepair(payload)
	if repairErr != nil {
		return errors.Upstreamf(repairErr, "response JSON could not be repaired")
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return errors.Upstreamf(err, "repaired response JSON still invalid")
	}
	return nil
}

// assignment tolerates both shapes the model emits for a per-tab result: a
// plain category string, or the full auditable record. The string shape is
// upcast to a record with defaults.
type assignment struct {
	Category   string   `json:"category"`
	Signals    []string `json:"signals"`
	Confidence string   `json:"confidence"`
}

func (a *assignment) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		a.Category = plain
		return nil
	}
	type record assignment
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*a = assignment(rec)
	return nil
}

var mermaidHeaderPattern = regexp.MustCompile(`(?i)^\s*(graph|flowchart)\s+(TB|TD|BT|LR|RL)\b`)

// ValidMermaid reports whether a cleaned response begins with a mermaid
// graph or flowchart header.
func ValidMermaid(diagram string) bool {
	return mermaidHeaderPattern.MatchString(diagram)
}
