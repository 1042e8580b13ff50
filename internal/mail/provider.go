// Package mail sends and receives email: one Provider implementation per
// EmailAccount.Provider value, an IMAP fetcher for the poller, and the
// Outbound Email Dispatcher that picks an account and renders templates.
package mail

import (
	"context"

	"github.com/bareuptime/convcore/internal/models"
)

// Provider is the redesigned capability interface from §9: the source
// duck-typed on optional methods per backend, which this module replaces
// with one explicit Send contract every backend implements directly.
type Provider interface {
	Send(ctx context.Context, envelope models.OutboundEnvelope) (providerMessageID string, err error)
}

// credentials bundles whatever a Provider constructor needs decrypted out
// of an EmailAccount row before dialing out.
type credentials struct {
	smtpUser string
	smtpPass string
	apiKey   string
}
