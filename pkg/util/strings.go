package util

import "unicode/utf8"

// TrimString cuts s to at most length bytes without splitting a UTF-8 sequence.
func TrimString(s string, length int) string {
	if len(s) <= length {
		return s
	}

	for length > 0 && !utf8.RuneStart(s[length]) {
		length--
	}

	return s[:length]
}
