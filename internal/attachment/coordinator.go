// Package attachment validates, stores, and authorizes access to files
// attached to a ticket or one of its messages.
package attachment

import (
	"context"
	"fmt"
	"io"

	"github.com/bareuptime/convcore/internal/blobstore"
	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
)

const maxFileSize = 10 * 1 << 20 // 10 MiB

var allowedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"application/pdf": true,
	"text/plain":      true,
	"text/csv":        true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/zip":      true,
	"audio/mpeg":            true,
	"video/mp4":             true,
}

// Requester identifies who is acting on an attachment, for the ownership
// check shared by Upload/Download/Delete.
type Requester struct {
	IsAdmin    bool
	CustomerID string
}

type Coordinator struct {
	store store.Store
	blobs blobstore.BlobStore
	clock clock.Clock
	ids   idgen.Source
}

func NewCoordinator(s store.Store, blobs blobstore.BlobStore, c clock.Clock, ids idgen.Source) *Coordinator {
	return &Coordinator{store: s, blobs: blobs, clock: c, ids: ids}
}

// Upload validates size and MIME type, checks the requester owns the
// ticket (customer) or is an admin of its organization, then streams the
// content to the BlobStore under a UUID-named path keyed by ticket.
func (c *Coordinator) Upload(ctx context.Context, tenantID, projectID, ticketID string, messageID *string, fileName, mimeType string, size int64, stream io.Reader, req Requester) (*models.Attachment, error) {
	if size > maxFileSize {
		return nil, coreerr.Validation(fmt.Sprintf("file exceeds max size of %d bytes", maxFileSize))
	}
	if !allowedMimeTypes[mimeType] {
		return nil, coreerr.Validation(fmt.Sprintf("mime type %q is not allowed", mimeType))
	}

	t, err := c.store.GetTicket(ctx, tenantID, projectID, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	if err := authorize(t, req); err != nil {
		return nil, err
	}

	attachmentID := c.ids.UUID()
	key := fmt.Sprintf("%s/%s", ticketID, attachmentID)
	if err := c.blobs.Put(ctx, key, stream, size); err != nil {
		return nil, coreerr.Transient("upload blob", err)
	}

	a := &models.Attachment{
		ID:         attachmentID,
		TicketID:   ticketID,
		MessageID:  messageID,
		FileName:   fileName,
		FilePath:   key,
		FileSize:   size,
		MimeType:   mimeType,
		UploadedBy: requesterID(req),
	}
	if err := c.store.CreateAttachment(ctx, a); err != nil {
		_ = c.blobs.Delete(ctx, key)
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	return a, nil
}

func (c *Coordinator) Download(ctx context.Context, tenantID, projectID, attachmentID string, req Requester) (io.ReadCloser, string, string, error) {
	a, err := c.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, "", "", fmt.Errorf("get attachment: %w", err)
	}

	t, err := c.store.GetTicket(ctx, tenantID, projectID, a.TicketID)
	if err != nil {
		return nil, "", "", fmt.Errorf("get ticket: %w", err)
	}
	if err := authorize(t, req); err != nil {
		return nil, "", "", err
	}

	stream, err := c.blobs.Get(ctx, a.FilePath)
	if err != nil {
		return nil, "", "", coreerr.Transient("download blob", err)
	}
	return stream, a.FileName, a.MimeType, nil
}

func (c *Coordinator) Delete(ctx context.Context, tenantID, projectID, attachmentID string, req Requester) error {
	a, err := c.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return fmt.Errorf("get attachment: %w", err)
	}

	t, err := c.store.GetTicket(ctx, tenantID, projectID, a.TicketID)
	if err != nil {
		return fmt.Errorf("get ticket: %w", err)
	}
	if err := authorize(t, req); err != nil {
		return err
	}

	if err := c.blobs.Delete(ctx, a.FilePath); err != nil {
		return coreerr.Transient("delete blob", err)
	}
	if err := c.store.DeleteAttachment(ctx, attachmentID); err != nil {
		return fmt.Errorf("delete attachment row: %w", err)
	}
	return nil
}

// DeleteAllForTicket is called by the ticket manager's HardDelete and the
// trash reaper before cascading the ticket row itself.
func (c *Coordinator) DeleteAllForTicket(ctx context.Context, ticketID string) error {
	attachments, err := c.store.ListAttachmentsByTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	for _, a := range attachments {
		if err := c.blobs.Delete(ctx, a.FilePath); err != nil {
			return coreerr.Transient("delete blob", err)
		}
		if err := c.store.DeleteAttachment(ctx, a.ID); err != nil {
			return fmt.Errorf("delete attachment row: %w", err)
		}
	}
	return nil
}

func authorize(t *models.Ticket, req Requester) error {
	if req.IsAdmin {
		return nil
	}
	if t.UserID != nil && *t.UserID == req.CustomerID {
		return nil
	}
	return coreerr.Forbidden("requester does not own this ticket")
}

func requesterID(req Requester) string {
	if req.IsAdmin {
		return "admin"
	}
	return req.CustomerID
}
