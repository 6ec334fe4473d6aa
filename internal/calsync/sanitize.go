package calsync

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// SanitizeText removes all html tags from text coming out of a feed,
// usually a description.
//
// Also limits the length of the string so there's not a massive chunk of
// text being persisted per instance.
func SanitizeText(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 2048 {
		s = s[:2048]
	}

	return s
}
