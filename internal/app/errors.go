package app

import "strings"

// Error substrings that mean the venue will keep rejecting us no matter how
// often we retry. Any of these escalates to an emergency stop instead of
// the usual backoff-and-continue.
var criticalSubstrings = []string{
	"insufficient funds",
	"account suspended",
	"invalid signature",
	"network error",
}

func isCritical(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sub := range criticalSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
