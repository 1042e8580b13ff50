package handlers

import (
	"net/http"
	"time"

	"github.com/bareuptime/convcore/internal/attachment"
	"github.com/bareuptime/convcore/internal/middleware"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/bareuptime/convcore/internal/ticket"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// AdminHandler backs the remaining admin-only rows of §6: routing rule and
// SLA definition CRUD, and the trash lifecycle (delete/list/restore/purge).
type AdminHandler struct {
	store       store.Store
	tickets     *ticket.Manager
	attachments *attachment.Coordinator
	ids         idSource
	validate    *validator.Validate
}

func NewAdminHandler(s store.Store, tickets *ticket.Manager, attachments *attachment.Coordinator, ids idSource) *AdminHandler {
	return &AdminHandler{store: s, tickets: tickets, attachments: attachments, ids: ids, validate: validator.New()}
}

type routingRuleRequest struct {
	Name        string                   `json:"name" validate:"required"`
	Priority    int                      `json:"priority"`
	IsActive    bool                     `json:"is_active"`
	Keywords    []string                 `json:"keywords"`
	IssueTypes  []string                 `json:"issue_types"`
	Tags        []string                 `json:"tags"`
	Context     []string                 `json:"context"`
	Priorities  []models.TicketPriority  `json:"priorities"`
	ActionType  models.RoutingActionType `json:"action_type" validate:"required"`
	ActionValue string                   `json:"action_value"`
}

func (req routingRuleRequest) toRule() models.RoutingRule {
	return models.RoutingRule{
		Name:     req.Name,
		Priority: req.Priority,
		IsActive: req.IsActive,
		Conditions: models.RoutingConditions{
			Keywords: req.Keywords, IssueTypes: req.IssueTypes, Tags: req.Tags,
			Context: req.Context, Priority: req.Priorities,
		},
		ActionType:  req.ActionType,
		ActionValue: req.ActionValue,
	}
}

// CreateRoutingRule handles the create half of POST /admin/routing-rules.
func (h *AdminHandler) CreateRoutingRule(c *gin.Context) {
	var req routingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	r := req.toRule()
	r.ID = h.ids.UUID()
	r.TenantID = middleware.GetTenantID(c)
	r.ProjectID = middleware.GetProjectID(c)

	if err := h.store.CreateRoutingRule(c.Request.Context(), &r); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ListRoutingRules handles GET /admin/routing-rules.
func (h *AdminHandler) ListRoutingRules(c *gin.Context) {
	rules, err := h.store.ListRoutingRules(c.Request.Context(), middleware.GetTenantID(c), middleware.GetProjectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// UpdateRoutingRule handles PUT /admin/routing-rules/{id}.
func (h *AdminHandler) UpdateRoutingRule(c *gin.Context) {
	var req routingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	r := req.toRule()
	r.ID = c.Param("id")
	r.TenantID = middleware.GetTenantID(c)
	r.ProjectID = middleware.GetProjectID(c)

	if err := h.store.UpdateRoutingRule(c.Request.Context(), &r); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRoutingRule handles DELETE /admin/routing-rules/{id}.
func (h *AdminHandler) DeleteRoutingRule(c *gin.Context) {
	err := h.store.DeleteRoutingRule(c.Request.Context(), middleware.GetTenantID(c), middleware.GetProjectID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type slaDefinitionRequest struct {
	Priority              models.TicketPriority `json:"priority" validate:"required"`
	ResponseTimeMinutes   int                   `json:"response_time_minutes" validate:"required,gt=0"`
	ResolutionTimeMinutes int                   `json:"resolution_time_minutes" validate:"required,gt=0"`
	BusinessHoursOnly     bool                  `json:"business_hours_only"`
	BusinessHoursStart    string                `json:"business_hours_start"`
	BusinessHoursEnd      string                `json:"business_hours_end"`
	BusinessDays          []time.Weekday        `json:"business_days"`
	IsActive              bool                  `json:"is_active"`
}

func (req slaDefinitionRequest) toDefinition() models.SlaDefinition {
	return models.SlaDefinition{
		Priority:              req.Priority,
		ResponseTimeMinutes:   req.ResponseTimeMinutes,
		ResolutionTimeMinutes: req.ResolutionTimeMinutes,
		BusinessHoursOnly:     req.BusinessHoursOnly,
		BusinessHoursStart:    req.BusinessHoursStart,
		BusinessHoursEnd:      req.BusinessHoursEnd,
		BusinessDays:          req.BusinessDays,
		IsActive:              req.IsActive,
	}
}

// CreateSla handles the create half of POST /admin/slas.
func (h *AdminHandler) CreateSla(c *gin.Context) {
	var req slaDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	s := req.toDefinition()
	s.ID = h.ids.UUID()
	s.TenantID = middleware.GetTenantID(c)
	s.ProjectID = middleware.GetProjectID(c)

	if err := h.store.CreateSlaDefinition(c.Request.Context(), &s); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// ListSlas handles GET /admin/slas.
func (h *AdminHandler) ListSlas(c *gin.Context) {
	defs, err := h.store.ListSlaDefinitions(c.Request.Context(), middleware.GetTenantID(c), middleware.GetProjectID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slas": defs})
}

// UpdateSla handles PUT /admin/slas/{id}.
func (h *AdminHandler) UpdateSla(c *gin.Context) {
	var req slaDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}

	s := req.toDefinition()
	s.ID = c.Param("id")
	s.TenantID = middleware.GetTenantID(c)
	s.ProjectID = middleware.GetProjectID(c)

	if err := h.store.UpdateSlaDefinition(c.Request.Context(), &s); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// DeleteSla handles DELETE /admin/slas/{id}.
func (h *AdminHandler) DeleteSla(c *gin.Context) {
	err := h.store.DeleteSlaDefinition(c.Request.Context(), middleware.GetTenantID(c), middleware.GetProjectID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type ticketIDsRequest struct {
	TicketIDs []string `json:"ticket_ids" validate:"required,min=1"`
}

// DeleteTickets handles POST /admin/tickets/delete — the soft-delete set.
func (h *AdminHandler) DeleteTickets(c *gin.Context) {
	var req ticketIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}
	if err := h.tickets.SoftDelete(c.Request.Context(), req.TicketIDs); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTrash handles GET /admin/tickets/trash.
func (h *AdminHandler) ListTrash(c *gin.Context) {
	deleted := true
	tickets, cursor, err := h.tickets.ListTickets(c.Request.Context(), middleware.GetTenantID(c), middleware.GetProjectID(c),
		store.TicketFilters{IsDeleted: &deleted}, store.Pagination{Cursor: c.Query("cursor"), Limit: 50})
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"tickets": tickets}
	if cursor != "" {
		resp["next_cursor"] = cursor
	}
	c.JSON(http.StatusOK, resp)
}

// RestoreTickets handles POST /admin/tickets/restore.
func (h *AdminHandler) RestoreTickets(c *gin.Context) {
	var req ticketIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}
	if err := h.tickets.Restore(c.Request.Context(), req.TicketIDs); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HardDeleteTickets handles DELETE /admin/tickets/trash — permanent purge.
func (h *AdminHandler) HardDeleteTickets(c *gin.Context) {
	var req ticketIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
		return
	}
	if err := h.tickets.HardDelete(c.Request.Context(), req.TicketIDs, h.attachments.DeleteAllForTicket); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
