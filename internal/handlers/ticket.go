package handlers

import (
	"net/http"

	"github.com/bareuptime/convcore/internal/ai"
	"github.com/bareuptime/convcore/internal/middleware"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/sla"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// TicketHandler binds, validates, and delegates every row of §6's ticket
// surface to ticket.Manager/sla.Tracker — no business logic lives here.
type TicketHandler struct {
	tickets  *ticket.Manager
	slas     *sla.Tracker
	aiCoord  *ai.Coordinator
	validate *validator.Validate
}

func NewTicketHandler(tickets *ticket.Manager, slas *sla.Tracker, aiCoord *ai.Coordinator) *TicketHandler {
	return &TicketHandler{tickets: tickets, slas: slas, aiCoord: aiCoord, validate: validator.New()}
}

type createTicketRequest struct {
	Context  string                `json:"context" validate:"required"`
	Subject  string                `json:"subject" validate:"required"`
	Message  string                `json:"message" validate:"required"`
	Priority *models.TicketPriority `json:"priority"`
}

// CreateTicket handles POST /ticket — create-or-continue per §4.1.
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req createTicketRequest
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
	userID := middleware.GetUserID(c)

	t, msg, trigger, err := h.tickets.IngestCustomerMessage(c.Request.Context(), tenantID, projectID,
		models.SourceAPI, userID, req.Context, req.Subject, req.Message, req.Priority, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	if trigger != nil && h.aiCoord != nil {
		h.aiCoord.HandleTrigger(c.Request.Context(), tenantID, projectID, trigger)
	}

	c.JSON(http.StatusCreated, gin.H{"ticket": t, "message": msg})
}

type replyRequest struct {
	Message string `json:"message" validate:"required"`
}

// Reply handles POST /ticket/{id}/reply — a customer appending to an
// existing thread, routed through the same ingest path as a fresh ticket
// so continuation/routing/AI-eligibility logic stays in one place.
func (h *TicketHandler) Reply(c *gin.Context) {
	var req replyRequest
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

	t, err := h.tickets.GetTicket(c.Request.Context(), tenantID, projectID, ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !middleware.IsAdmin(c) && (t.UserID == nil || *t.UserID != middleware.GetUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester does not own this ticket"})
		return
	}

	_, newMsg, trigger, err := h.tickets.IngestCustomerMessage(c.Request.Context(), tenantID, projectID,
		t.Source, middleware.GetUserID(c), t.Context, t.Subject, req.Message, nil, &ticketID)
	if err != nil {
		respondError(c, err)
		return
	}

	if trigger != nil && h.aiCoord != nil {
		h.aiCoord.HandleTrigger(c.Request.Context(), tenantID, projectID, trigger)
	}

	c.JSON(http.StatusCreated, newMsg)
}

// AdminReply handles POST /ticket/{id}/admin/reply.
func (h *TicketHandler) AdminReply(c *gin.Context) {
	var req replyRequest
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
	adminID := middleware.GetUserID(c)

	if err := h.tickets.AssignToAdmin(c.Request.Context(), ticketID, adminID); err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.tickets.AppendAdminReply(c.Request.Context(), tenantID, projectID, ticketID, adminID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Escalate handles POST /ticket/{id}/escalate.
func (h *TicketHandler) Escalate(c *gin.Context) {
	ticketID := c.Param("id")
	if err := h.tickets.Escalate(c.Request.Context(), ticketID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseTicket handles POST /ticket/{id}/close.
func (h *TicketHandler) CloseTicket(c *gin.Context) {
	ticketID := c.Param("id")
	adminID := middleware.GetUserID(c)
	if err := h.tickets.CloseTicket(c.Request.Context(), ticketID, adminID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type updatePriorityRequest struct {
	Priority models.TicketPriority `json:"priority" validate:"required"`
}

// UpdatePriority handles POST /ticket/{id}/priority.
func (h *TicketHandler) UpdatePriority(c *gin.Context) {
	var req updatePriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	ticketID := c.Param("id")
	if err := h.tickets.UpdatePriority(c.Request.Context(), ticketID, req.Priority); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetThread handles GET /ticket/{id} — the full thread fetch.
func (h *TicketHandler) GetThread(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	projectID := middleware.GetProjectID(c)
	ticketID := c.Param("id")

	t, err := h.tickets.GetTicket(c.Request.Context(), tenantID, projectID, ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !middleware.IsAdmin(c) && (t.UserID == nil || *t.UserID != middleware.GetUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "requester does not own this ticket"})
		return
	}

	messages, err := h.tickets.ListMessages(c.Request.Context(), ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": t, "messages": messages})
}

// SlaStatus handles GET /ticket/{id}/sla-status.
func (h *TicketHandler) SlaStatus(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	projectID := middleware.GetProjectID(c)
	ticketID := c.Param("id")

	status, err := h.slas.GetSlaStatus(c.Request.Context(), tenantID, projectID, ticketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
