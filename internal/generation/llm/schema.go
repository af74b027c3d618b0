package llm

import "sort"

// Object builds a strict JSON schema object; every property is required.
func Object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func String() map[string]any  { return map[string]any{"type": "string"} }
func Integer() map[string]any { return map[string]any{"type": "integer"} }
func Boolean() map[string]any { return map[string]any{"type": "boolean"} }

func Array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func StringList() map[string]any { return Array(String()) }
