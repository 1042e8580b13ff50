package mail

import (
	"regexp"
	"strings"

	"github.com/bareuptime/convcore/internal/models"
)

// renderTemplate substitutes {{var}} placeholders from vars; placeholders
// with no entry in vars render as empty, grounded on the teacher's
// replaceVariables. The dispatcher passes the TemplateVars set.
func renderTemplate(tpl *models.EmailTemplate, vars map[string]string) (subject, body string) {
	subject = substitute(tpl.SubjectTemplate, vars)
	body = substitute(tpl.BodyTemplate, vars)
	return subject, body
}

func substitute(text string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}")
		key = strings.TrimSpace(key)
		if v, ok := vars[key]; ok {
			return v
		}
		return ""
	})
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*[a-zA-Z0-9_]+\s*\}\}`)

// isAutoReply detects loop-causing auto-responses, grounded on the
// teacher's Service.isAutoReply header/subject heuristics.
func isAutoReply(subject string, headers map[string][]string) bool {
	for key, values := range headers {
		key = strings.ToLower(key)
		for _, value := range values {
			value = strings.ToLower(value)
			switch key {
			case "auto-submitted":
				if value != "no" {
					return true
				}
			case "x-auto-response-suppress", "x-autoreply", "x-autorespond":
				return true
			case "precedence":
				if value == "bulk" || value == "list" || value == "junk" {
					return true
				}
			}
		}
	}

	lower := strings.ToLower(subject)
	for _, pattern := range autoReplyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

var autoReplyPatterns = []string{
	"out of office", "automatic reply", "auto-reply", "vacation",
	"away message", "delivery status notification",
	"undelivered mail returned", "mail delivery failed",
}

// cleanSubject strips Re:/Fwd: prefixes so a threaded subject compares
// cleanly against the continuation key.
func cleanSubject(subject string) string {
	return replyPrefixPattern.ReplaceAllString(strings.TrimSpace(subject), "")
}

var replyPrefixPattern = regexp.MustCompile(`(?i)^(re|fwd?):\s*`)

// loopPreventionHeaders are stamped on every outbound message the
// dispatcher generates so upstream auto-responders and the poller's own
// isAutoReply check never cause a reply loop.
func loopPreventionHeaders() map[string]string {
	return map[string]string{
		"Auto-Submitted":           "auto-replied",
		"X-Auto-Response-Suppress": "All",
	}
}
