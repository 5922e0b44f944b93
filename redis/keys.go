package redis

import "strings"

// Join builds a colon-separated Redis key from segments, dropping empty
// ones. Namespaces are themselves segments, so Join("", "schedules")
// collapses to "schedules" rather than ":schedules".
func Join(segments ...string) string {
	kept := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ":")
}
