package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// StringPtr returns a pointer to the cleaned `s`, or nil if it is blank.
func StringPtr(s string) *string {
	if s = CleanString(s); s == "" {
		return nil
	}
	return &s
}
