package util

import (
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`<([^>]+)>`)

// ExtractEmailAddress pulls the bare address out of an RFC 5322 display
// form ("Display Name <email@domain.com>"), passing a bare address through
// unchanged.
func ExtractEmailAddress(address string) string {
	if matches := addressPattern.FindStringSubmatch(address); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(address)
}
