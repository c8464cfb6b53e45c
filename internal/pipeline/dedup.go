package pipeline

import (
	"time"

	"github.com/deusflow/shorts-hunter/internal/fetch"
)

// DedupByURL keeps the first item seen for every URL, preserving order.
func DedupByURL(items []fetch.Item) []fetch.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]fetch.Item, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.URL]; dup {
			continue
		}
		seen[it.URL] = struct{}{}
		out = append(out, it)
	}
	return out
}

// inWindow drops items published before start. Items without a known
// publish date are kept.
func inWindow(items []fetch.Item, start time.Time) []fetch.Item {
	out := make([]fetch.Item, 0, len(items))
	for _, it := range items {
		if it.PublishedAt == nil || !it.PublishedAt.Before(start) {
			out = append(out, it)
		}
	}
	return out
}
