package util

// Truncate shortens s to at most max runes, appending an ellipsis marker
// when content was cut. Rune-safe so multi-byte text is never split.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
