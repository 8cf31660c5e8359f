package content

import (
	"fmt"
	"regexp"
	"strings"
)

// scriptRe matches <script ...>...</script> blocks case-insensitively,
// including the tag contents. A second pass removes any unterminated open
// tag left behind. This is defense-in-depth against stored script injection,
// not a full HTML sanitizer.
var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	scriptOpenRe = regexp.MustCompile(`(?is)<script\b[^>]*>`)
)

// Validate checks body against the structural rules registered for typ and
// returns every violated rule. Checks accumulate rather than short-circuit
// so the admin UI can report all problems at once. An empty slice means the
// body is valid. Types missing from the registry get the generic object rule.
func (r *Registry) Validate(typ string, body any) []string {
	rules := ruleObject
	if e, ok := r.Lookup(typ); ok {
		rules = e.Rules
	}

	obj, isObj := body.(map[string]any)
	if !isObj {
		return []string{"content body must be a JSON object"}
	}

	var problems []string
	switch rules {
	case ruleCarousel:
		slides, ok := obj["slides"].([]any)
		if !ok {
			problems = append(problems, "slides array is required")
			break
		}
		for i, s := range slides {
			slide, ok := s.(map[string]any)
			if !ok {
				problems = append(problems, fmt.Sprintf("slide %d must be an object", i))
				continue
			}
			for _, field := range []string{"id", "title", "description", "backgroundImage"} {
				if _, present := slide[field]; !present {
					problems = append(problems, fmt.Sprintf("slide %d is missing %s", i, field))
				}
			}
		}
	case ruleContact:
		problems = append(problems, requireObject(obj, "contact",
			"title", "organization", "address", "phone", "email")...)
	case ruleHistory:
		problems = append(problems, requireObject(obj, "history", "title")...)
		if h, ok := obj["history"].(map[string]any); ok {
			if _, isArr := h["content"].([]any); !isArr {
				problems = append(problems, "history.content array is required")
			}
		}
	case ruleServices:
		problems = append(problems, requireObject(obj, "services", "title")...)
		if s, ok := obj["services"].(map[string]any); ok {
			if _, isArr := s["items"].([]any); !isArr {
				problems = append(problems, "services.items array is required")
			}
		}
	case ruleObject:
		// object check above is the whole rule
	}
	return problems
}

// requireObject checks that obj[key] is an object carrying the given fields.
func requireObject(obj map[string]any, key string, fields ...string) []string {
	inner, ok := obj[key].(map[string]any)
	if !ok {
		return []string{key + " object is required"}
	}
	var problems []string
	for _, f := range fields {
		if _, present := inner[f]; !present {
			problems = append(problems, key+"."+f+" is required")
		}
	}
	return problems
}

// Sanitize walks body recursively and cleans every string leaf: whitespace
// trimmed, embedded script tags removed. Maps and slices are rebuilt so the
// caller's value is never mutated in place.
func Sanitize(body any) any {
	switch v := body.(type) {
	case string:
		return sanitizeString(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = Sanitize(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = Sanitize(val)
		}
		return out
	default:
		return v
	}
}

func sanitizeString(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = scriptOpenRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
