package attachment

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/bareuptime/convcore/internal/blobstore"
	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/models"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeStore) {
	t.Helper()
	s := newFakeStore()
	blobs := blobstore.NewFilesystemStore(t.TempDir())
	c := NewCoordinator(s, blobs, clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), idgen.Sequential("a"))
	return c, s
}

func ownerTicket(id, owner string) *models.Ticket {
	return &models.Ticket{ID: id, TenantID: "tenant1", ProjectID: "proj1", UserID: &owner}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")

	data := bytes.Repeat([]byte("x"), maxFileSize+1)
	_, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "big.bin", "application/pdf", int64(len(data)), bytes.NewReader(data), Requester{CustomerID: "cust1"})
	if !coreerr.Is(err, coreerr.KindValidation) {
		t.Fatalf("err = %v, want validation error for oversized file", err)
	}
}

func TestUploadRejectsDisallowedMimeType(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")

	_, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "script.exe", "application/x-msdownload", 10, bytes.NewReader([]byte("0123456789")), Requester{CustomerID: "cust1"})
	if !coreerr.Is(err, coreerr.KindValidation) {
		t.Fatalf("err = %v, want validation error for disallowed mime type", err)
	}
}

func TestUploadRejectsRequesterWhoDoesNotOwnTicket(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")

	_, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "doc.pdf", "application/pdf", 10, bytes.NewReader([]byte("0123456789")), Requester{CustomerID: "cust2"})
	if !coreerr.Is(err, coreerr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden error for non-owning customer", err)
	}
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")
	content := []byte("hello attachment")

	a, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "note.txt", "text/plain", int64(len(content)), bytes.NewReader(content), Requester{CustomerID: "cust1"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	stream, name, mime, err := c.Download(context.Background(), "tenant1", "proj1", a.ID, Requester{CustomerID: "cust1"})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer stream.Close()
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("downloaded content = %q, want %q", got, content)
	}
	if name != "note.txt" || mime != "text/plain" {
		t.Fatalf("name/mime = %q/%q, want note.txt/text/plain", name, mime)
	}
}

func TestDownloadRejectsNonOwningRequester(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")
	a, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "note.txt", "text/plain", 5, bytes.NewReader([]byte("hello")), Requester{CustomerID: "cust1"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if _, _, _, err := c.Download(context.Background(), "tenant1", "proj1", a.ID, Requester{CustomerID: "cust2"}); !coreerr.Is(err, coreerr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden error", err)
	}
}

func TestDeleteRemovesBlobAndRow(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")
	a, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "note.txt", "text/plain", 5, bytes.NewReader([]byte("hello")), Requester{CustomerID: "cust1"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := c.Delete(context.Background(), "tenant1", "proj1", a.ID, Requester{CustomerID: "cust1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.GetAttachment(context.Background(), a.ID); !coreerr.Is(err, coreerr.KindNotFound) {
		t.Fatalf("attachment row should be gone after Delete, got err = %v", err)
	}
	if _, _, _, err := c.Download(context.Background(), "tenant1", "proj1", a.ID, Requester{CustomerID: "cust1"}); err == nil {
		t.Fatal("Download should fail once the attachment has been deleted")
	}
}

func TestDeleteAllForTicketRemovesEveryAttachment(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")

	var ids []string
	for i := 0; i < 3; i++ {
		a, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "note.txt", "text/plain", 5, bytes.NewReader([]byte("hello")), Requester{CustomerID: "cust1"})
		if err != nil {
			t.Fatalf("Upload %d: %v", i, err)
		}
		ids = append(ids, a.ID)
	}

	if err := c.DeleteAllForTicket(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteAllForTicket: %v", err)
	}

	for _, id := range ids {
		if _, err := s.GetAttachment(context.Background(), id); !coreerr.Is(err, coreerr.KindNotFound) {
			t.Fatalf("attachment %s should be gone, got err = %v", id, err)
		}
	}
	remaining, err := s.ListAttachmentsByTicket(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ListAttachmentsByTicket: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining attachments = %d, want 0", len(remaining))
	}
}

func TestAdminRequesterBypassesOwnershipCheck(t *testing.T) {
	c, s := newTestCoordinator(t)
	s.tickets["t1"] = ownerTicket("t1", "cust1")

	a, err := c.Upload(context.Background(), "tenant1", "proj1", "t1", nil, "note.txt", "text/plain", 5, bytes.NewReader([]byte("hello")), Requester{IsAdmin: true})
	if err != nil {
		t.Fatalf("Upload as admin: %v", err)
	}
	if a.UploadedBy != "admin" {
		t.Fatalf("UploadedBy = %q, want admin", a.UploadedBy)
	}
	if _, _, _, err := c.Download(context.Background(), "tenant1", "proj1", a.ID, Requester{IsAdmin: true}); err != nil {
		t.Fatalf("Download as admin: %v", err)
	}
}
