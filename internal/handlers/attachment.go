package handlers

import (
	"io"
	"net/http"

	"github.com/bareuptime/convcore/internal/attachment"
	"github.com/bareuptime/convcore/internal/middleware"
	"github.com/gin-gonic/gin"
)

// AttachmentHandler binds §5's upload/download/delete surface to
// attachment.Coordinator, translating the gin request's multipart body or
// URL params into the coordinator's plain io.Reader API.
type AttachmentHandler struct {
	attachments *attachment.Coordinator
}

func NewAttachmentHandler(attachments *attachment.Coordinator) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

func requester(c *gin.Context) attachment.Requester {
	return attachment.Requester{IsAdmin: middleware.IsAdmin(c), CustomerID: middleware.GetUserID(c)}
}

// Upload handles POST /ticket/{id}/attachments.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	projectID := middleware.GetProjectID(c)
	ticketID := c.Param("id")

	var messageID *string
	if mid := c.PostForm("message_id"); mid != "" {
		messageID = &mid
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open upload"})
		return
	}
	defer file.Close()

	mimeType := fileHeader.Header.Get("Content-Type")
	a, err := h.attachments.Upload(c.Request.Context(), tenantID, projectID, ticketID, messageID,
		fileHeader.Filename, mimeType, fileHeader.Size, file, requester(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// Download handles GET /attachments/{id}.
func (h *AttachmentHandler) Download(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	projectID := middleware.GetProjectID(c)
	attachmentID := c.Param("id")

	stream, fileName, mimeType, err := h.attachments.Download(c.Request.Context(), tenantID, projectID, attachmentID, requester(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer stream.Close()

	c.Header("Content-Disposition", `attachment; filename="`+fileName+`"`)
	c.Header("Content-Type", mimeType)
	if _, err := io.Copy(c.Writer, stream); err != nil {
		return
	}
}

// Delete handles DELETE /attachments/{id}.
func (h *AttachmentHandler) Delete(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	projectID := middleware.GetProjectID(c)
	attachmentID := c.Param("id")

	if err := h.attachments.Delete(c.Request.Context(), tenantID, projectID, attachmentID, requester(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
