package types

// Shorten keeps the first head and last tail characters of s joined by an
// ellipsis. Strings too short to benefit are returned unchanged.
func Shorten(s string, head, tail int) string {
	if head < 0 || tail < 0 || len(s) <= head+tail+3 {
		return s
	}
	return s[:head] + "..." + s[len(s)-tail:]
}
