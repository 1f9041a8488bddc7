package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.StrictPolicy()

// Sanitize strips all markup so user text can be embedded in an HTML mail body.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
