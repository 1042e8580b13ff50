package mail

import (
	"fmt"
	"strings"
)

// GenerateThreadingHeaders builds the Message-ID/References pair a reply to
// an existing ticket should carry, VERP-style so bounces and replies route
// back to the right ticket without a lookup table.
func GenerateThreadingHeaders(ticketID, domain string, priorMessageIDs []string) (messageID, references string) {
	messageID = fmt.Sprintf("<ticket+%s-%d@%s>", ticketID, len(priorMessageIDs)+1, domain)
	if len(priorMessageIDs) > 0 {
		references = strings.Join(priorMessageIDs, " ")
	}
	return messageID, references
}

// verpReplyAddress returns the reply-to address a dispatcher stamps on
// outbound mail so an inbound reply's To header already names the ticket.
func verpReplyAddress(ticketID, domain string) string {
	return fmt.Sprintf("t+%s@reply.%s", ticketID, domain)
}
