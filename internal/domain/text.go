package domain

import "html"

// DecodeEntities resolves HTML character references such as &quot; and &#039;.
// Input is unescaped until it no longer changes, so decoding an already
// decoded string returns it unchanged. Malformed references are left as-is.
func DecodeEntities(text string) string {
	// Each replaced reference shrinks the rune count, so the loop terminates.
	for {
		next := html.UnescapeString(text)
		if next == text {
			return text
		}
		text = next
	}
}
