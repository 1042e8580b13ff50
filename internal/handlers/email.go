package handlers

import (
	"net/http"

	"github.com/bareuptime/convcore/internal/ai"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/crypto"
	"github.com/bareuptime/convcore/internal/mail"
	"github.com/bareuptime/convcore/internal/middleware"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/spam"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// idSource is the narrow slice of idgen.Source EmailHandler needs.
type idSource interface {
	UUID() string
}

// EmailHandler backs §6's outbound send, email thread listing, and email
// account admin surface.
type EmailHandler struct {
	store      store.Store
	dispatcher *mail.Dispatcher
	envelope   *crypto.Envelope
	ids        idSource
	validate   *validator.Validate
}

func NewEmailHandler(s store.Store, dispatcher *mail.Dispatcher, envelope *crypto.Envelope, ids idSource) *EmailHandler {
	return &EmailHandler{store: s, dispatcher: dispatcher, envelope: envelope, ids: ids, validate: validator.New()}
}

type sendEmailRequest struct {
	To              []string `json:"to" validate:"required,min=1"`
	Cc              []string `json:"cc"`
	Bcc             []string `json:"bcc"`
	Subject         string   `json:"subject"`
	BodyText        string   `json:"body_text"`
	BodyHTML        string   `json:"body_html"`
	ReplyTo         string   `json:"reply_to"`
	TemplateID      string   `json:"template_id"`
	SenderAccountID *string  `json:"sender_account_id"`
	CustomerName    string   `json:"customer_name"`
	CustomerEmail   string   `json:"customer_email"`
}

// SendEmail handles POST /ticket/{id}/send-email.
func (h *EmailHandler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	tenantID := middleware.GetTenantID(c)
	projectID := middleware.GetProjectID(c)
	ticketID := c.Param("id")

	params := mail.SendParams{
		To: req.To, Cc: req.Cc, Bcc: req.Bcc,
		Subject: req.Subject, BodyText: req.BodyText, BodyHTML: req.BodyHTML,
		ReplyTo: req.ReplyTo, TemplateID: req.TemplateID,
	}
	vars := mail.TemplateVars{
		TicketID: ticketID, CustomerName: req.CustomerName, CustomerEmail: req.CustomerEmail,
		Subject: req.Subject, Message: req.BodyText,
	}

	em, err := h.dispatcher.SendFromTicket(c.Request.Context(), tenantID, projectID, ticketID, params, vars, req.SenderAccountID)
	if err != nil && em == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "email": em})
		return
	}
	c.JSON(http.StatusCreated, em)
}

// ListEmails handles GET /ticket/{id}/emails.
func (h *EmailHandler) ListEmails(c *gin.Context) {
	ticketID := c.Param("id")
	emails, err := h.store.ListEmailMessagesByTicket(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emails": emails})
}

type emailAccountRequest struct {
	Address     string               `json:"address" validate:"required,email"`
	DisplayName string               `json:"display_name"`
	Provider    models.EmailProvider `json:"provider" validate:"required"`
	APIKey      string               `json:"api_key"`
	SMTPHost    string               `json:"smtp_host"`
	SMTPPort    int                  `json:"smtp_port"`
	SMTPUseTLS  bool                 `json:"smtp_use_tls"`
	SMTPUser    string               `json:"smtp_user"`
	SMTPPass    string               `json:"smtp_pass"`
	IMAPHost    string               `json:"imap_host"`
	IMAPPort    int                  `json:"imap_port"`
	IMAPUseTLS  bool                 `json:"imap_use_tls"`
	IMAPEnabled bool                 `json:"imap_enabled"`
	IMAPUser    string               `json:"imap_user"`
	IMAPPass    string               `json:"imap_pass"`
	IsDefault   bool                 `json:"is_default"`
}

func (h *EmailHandler) sealAll(req emailAccountRequest) (apiKey, smtpUser, smtpPass, imapUser, imapPass crypto.Sealed, err error) {
	if apiKey, err = h.envelope.Seal(req.APIKey); err != nil {
		return
	}
	if smtpUser, err = h.envelope.Seal(req.SMTPUser); err != nil {
		return
	}
	if smtpPass, err = h.envelope.Seal(req.SMTPPass); err != nil {
		return
	}
	if imapUser, err = h.envelope.Seal(req.IMAPUser); err != nil {
		return
	}
	imapPass, err = h.envelope.Seal(req.IMAPPass)
	return
}

// CreateEmailAccount handles POST /admin/email-accounts.
func (h *EmailHandler) CreateEmailAccount(c *gin.Context) {
	var req emailAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	apiKey, smtpUser, smtpPass, imapUser, imapPass, err := h.sealAll(req)
	if err != nil {
		respondError(c, coreerr.Permanent("seal credentials", err))
		return
	}

	account := &models.EmailAccount{
		ID:             h.ids.UUID(),
		TenantID:       middleware.GetTenantID(c),
		ProjectID:      middleware.GetProjectID(c),
		Address:        req.Address,
		DisplayName:    req.DisplayName,
		Provider:       req.Provider,
		SealedAPIKey:   models.SealedCredential(apiKey),
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUseTLS:     req.SMTPUseTLS,
		SealedSMTPUser: models.SealedCredential(smtpUser),
		SealedSMTPPass: models.SealedCredential(smtpPass),
		IMAPHost:       req.IMAPHost,
		IMAPPort:       req.IMAPPort,
		IMAPUseTLS:     req.IMAPUseTLS,
		IMAPEnabled:    req.IMAPEnabled,
		SealedIMAPUser: models.SealedCredential(imapUser),
		SealedIMAPPass: models.SealedCredential(imapPass),
		IsActive:       true,
		IsDefault:      req.IsDefault,
	}

	if err := h.store.CreateEmailAccount(c.Request.Context(), account); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// ListEmailAccounts handles GET /admin/email-accounts.
func (h *EmailHandler) ListEmailAccounts(c *gin.Context) {
	accounts, err := h.store.ListEmailAccounts(c.Request.Context(), middleware.GetTenantID(c), middleware.GetProjectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// EnablePolling handles POST /admin/email-accounts/{id}/enable-polling.
func (h *EmailHandler) EnablePolling(c *gin.Context) {
	accountID := c.Param("id")
	account, err := h.store.GetEmailAccount(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err)
		return
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	account.IMAPEnabled = body.Enabled
	if body.Enabled {
		account.PollingDisabledAt = nil
		account.ConsecutiveFailures = 0
	}
	if err := h.store.UpdateEmailAccount(c.Request.Context(), account); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// WebhookHandler ingests inbound email delivered via the alternate HTTP
// ingress (§6's HMAC-signed row), running the same spam-gate/bind/ingest
// sequence poller.Supervisor runs per fetched IMAP message.
type WebhookHandler struct {
	store      store.Store
	tickets    *ticket.Manager
	classifier *spam.Classifier
	aiCoord    *ai.Coordinator
	ids        idSource
	logger     zerolog.Logger
}

func NewWebhookHandler(s store.Store, tickets *ticket.Manager, classifier *spam.Classifier, aiCoord *ai.Coordinator, ids idSource, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{store: s, tickets: tickets, classifier: classifier, aiCoord: aiCoord, ids: ids, logger: logger.With().Str("component", "email_webhook").Logger()}
}

type webhookPayload struct {
	TenantID       string `json:"tenant_id" validate:"required"`
	ProjectID      string `json:"project_id" validate:"required"`
	EmailAccountID string `json:"email_account_id" validate:"required"`
	MessageID      string `json:"message_id" validate:"required"`
	InReplyTo      string `json:"in_reply_to"`
	From           string `json:"from" validate:"required,email"`
	Subject        string `json:"subject"`
	BodyText       string `json:"body_text"`
}

// Ingest handles POST /webhooks/email. WebhookHMACMiddleware has already
// verified the signature by the time this runs.
func (h *WebhookHandler) Ingest(c *gin.Context) {
	var p webhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()

	if _, err := h.store.GetEmailMessageByMessageID(ctx, p.EmailAccountID, p.MessageID); err == nil {
		c.Status(http.StatusOK) // already ingested, idempotent replay
		return
	}

	var replyTicketID string
	if p.InReplyTo != "" {
		if tid, err := h.store.FindTicketByInReplyTo(ctx, p.EmailAccountID, p.InReplyTo); err == nil {
			replyTicketID = tid
		}
	}

	result := h.classifier.Classify(p.Subject, p.BodyText, p.From, nil)
	isReply := replyTicketID != ""
	if !isReply && result.Category != spam.CategoryHam {
		em := &models.EmailMessage{
			ID: h.ids.UUID(), TenantID: p.TenantID, ProjectID: p.ProjectID, EmailAccountID: p.EmailAccountID,
			MessageID: p.MessageID, Subject: p.Subject, BodyText: &p.BodyText, From: p.From,
			Status: models.EmailStatusFiltered, Direction: models.DirectionInbound,
		}
		_ = h.store.CreateEmailMessage(ctx, em)
		c.Status(http.StatusOK)
		return
	}

	customer, err := h.store.FindOrCreateCustomerByEmail(ctx, p.TenantID, p.ProjectID, p.From, p.From)
	if err != nil {
		respondError(c, err)
		return
	}

	var replyPtr *string
	if replyTicketID != "" {
		replyPtr = &replyTicketID
	}
	_, _, trigger, err := h.tickets.IngestCustomerMessage(ctx, p.TenantID, p.ProjectID,
		models.SourceEmail, customer.ID, "email", p.Subject, p.BodyText, nil, replyPtr)
	if err != nil {
		respondError(c, err)
		return
	}

	em := &models.EmailMessage{
		ID: h.ids.UUID(), TenantID: p.TenantID, ProjectID: p.ProjectID, EmailAccountID: p.EmailAccountID,
		MessageID: p.MessageID, Subject: p.Subject, BodyText: &p.BodyText, From: p.From,
		Status: models.EmailStatusReceived, Direction: models.DirectionInbound,
	}
	if replyTicketID != "" {
		em.TicketID = &replyTicketID
		em.InReplyTo = &p.InReplyTo
	}
	if err := h.store.CreateEmailMessage(ctx, em); err != nil {
		h.logger.Warn().Err(err).Msg("failed to record inbound webhook email")
	}

	if trigger != nil && h.aiCoord != nil {
		h.aiCoord.HandleTrigger(ctx, p.TenantID, p.ProjectID, trigger)
	}
	c.Status(http.StatusOK)
}
