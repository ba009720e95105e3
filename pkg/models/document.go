package models

import "sort"

// CloneDocument deep-copies a structured key/value document made of maps,
// slices and scalars. Values of other types are copied by assignment.
func CloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}

	clone := make(map[string]any, len(doc))
	for key, value := range doc {
		clone[key] = cloneValue(value)
	}

	return clone
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CloneDocument(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = cloneValue(item)
		}

		return items
	default:
		return v
	}
}

// SortLogs orders logs by StartedAt ascending, keeping insertion order on ties.
func SortLogs(logs []*ExecutionLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].StartedAt.Before(logs[j].StartedAt)
	})
}
