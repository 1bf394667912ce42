package calendar

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ParseAssignees turns whatever the store holds for an event's assignees
// into a sorted, de-duplicated set. A JSON array is parsed structurally;
// anything else non-blank becomes a one-element set; nil, blank and
// JSON null give an empty set. It never returns nil.
func ParseAssignees(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case *string:
		if v == nil {
			return []string{}
		}
		return parseAssigneeText(*v)
	case string:
		return parseAssigneeText(v)
	case json.RawMessage:
		return parseAssigneeText(string(v))
	case []byte:
		return parseAssigneeText(string(v))
	case []string:
		return normalizeSet(v)
	case []any:
		return normalizeSet(stringifyAll(v))
	default:
		return normalizeSet([]string{fmt.Sprint(v)})
	}
}

func parseAssigneeText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return []string{}
	}
	if strings.HasPrefix(text, "[") {
		var items []any
		if err := json.Unmarshal([]byte(text), &items); err == nil {
			return normalizeSet(stringifyAll(items))
		}
	}
	// a bare JSON string such as "\"child-1\"" is still a scalar
	var scalar string
	if err := json.Unmarshal([]byte(text), &scalar); err == nil {
		return normalizeSet([]string{scalar})
	}
	return normalizeSet([]string{text})
}

func stringifyAll(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			out = append(out, v)
		case float64:
			out = append(out, fmt.Sprintf("%g", v))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

func normalizeSet(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// EncodeAssignees is the storage form written back to the store.
func EncodeAssignees(set []string) string {
	b, err := json.Marshal(normalizeSet(set))
	if err != nil {
		return "[]"
	}
	return string(b)
}
