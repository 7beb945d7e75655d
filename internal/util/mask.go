package util

import (
	"strconv"
	"strings"
)

// MaskMobile keeps the last two digits of a phone number.
func MaskMobile(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 2 {
		return "***"
	}
	return strings.Repeat("*", len(s)-2) + s[len(s)-2:]
}

// MaskToken keeps a short prefix of a credential so log lines can be
// correlated without exposing it.
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "…(" + strconv.Itoa(len(s)) + ")"
}
