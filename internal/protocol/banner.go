package protocol

import (
	"regexp"
	"strings"
)

// bannerPattern matches CONNECTED=LAYOUT_<TOKEN> where TOKEN is uppercase words joined
// by underscores and ending in one of the host OS markers.
var bannerPattern = regexp.MustCompile(`CONNECTED=LAYOUT_((?:[A-Z]+_)+(?:WINLIN|MAC))`)

// ParseBanner extracts the layout token from text collected after connecting.
func ParseBanner(text string) (token string, ok bool) {
	m := bannerPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// bannerComplete reports whether collection can stop before the deadline.
func bannerComplete(text string) bool {
	return strings.ContainsAny(text, "\r\n") || bannerPattern.MatchString(text)
}
