package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres implements Store against a jmoiron/sqlx handle, following the
// teacher's raw-SQL repository idiom (explicit column lists, dynamic WHERE
// clause construction for List calls, fmt.Errorf("...: %w") wrapping).
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type txKey struct{}

func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return coreerr.Transient("begin transaction", err)
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return coreerr.Transient("commit transaction", err)
	}
	return nil
}

// execer/queryer picks the ambient transaction out of ctx when WithTx has
// wrapped the call, otherwise falls back to the pooled connection.
type execer interface {
	sqlx.ExtContext
}

func (p *Postgres) conn(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return p.db
}

func wrapNotFound(err error, what string) error {
	if err == sql.ErrNoRows {
		return coreerr.NotFound(what)
	}
	return coreerr.Transient(what, err)
}

// --- TicketStore ---

func (p *Postgres) CreateTicket(ctx context.Context, t *models.Ticket) error {
	query := `
		INSERT INTO tickets (id, tenant_id, project_id, number, organization_id, user_id, context, subject,
			status, priority, source, category, assigned_to, sla_id, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, (SELECT COALESCE(MAX(number), 0) + 1 FROM tickets WHERE tenant_id = $2 AND project_id = $3),
			$4, $5, $6, $7, $8, $9, $10, $11, $12, $13, false, NOW(), NOW())
		RETURNING number, created_at, updated_at`

	row := p.conn(ctx).QueryRowxContext(ctx, query,
		t.ID, t.TenantID, t.ProjectID, t.OrganizationID, t.UserID, t.Context, t.Subject,
		t.Status, t.Priority, t.Source, t.Category, t.AssignedTo, t.SlaID)
	if err := row.Scan(&t.Number, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return coreerr.Transient("create ticket", err)
	}
	return nil
}

const ticketColumns = `id, tenant_id, project_id, number, organization_id, user_id, context, subject,
	status, priority, source, category, assigned_to, sla_id, is_deleted, deleted_at,
	first_response_at, last_response_at, resolved_at, created_at, updated_at`

func scanTicket(row *sqlx.Row) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Number, &t.OrganizationID, &t.UserID, &t.Context, &t.Subject,
		&t.Status, &t.Priority, &t.Source, &t.Category, &t.AssignedTo, &t.SlaID, &t.IsDeleted, &t.DeletedAt,
		&t.FirstResponseAt, &t.LastResponseAt, &t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (p *Postgres) GetTicket(ctx context.Context, tenantID, projectID, ticketID string) (*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id = $1 AND project_id = $2 AND id = $3`, ticketColumns)
	row := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, ticketID)
	t, err := scanTicket(row)
	if err != nil {
		return nil, wrapNotFound(err, "ticket not found")
	}
	return t, nil
}

func (p *Postgres) GetTicketUnscoped(ctx context.Context, ticketID string) (*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1`, ticketColumns)
	row := p.conn(ctx).QueryRowxContext(ctx, query, ticketID)
	t, err := scanTicket(row)
	if err != nil {
		return nil, wrapNotFound(err, "ticket not found")
	}
	return t, nil
}

func (p *Postgres) GetTicketByNumber(ctx context.Context, tenantID string, number int) (*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id = $1 AND number = $2`, ticketColumns)
	row := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, number)
	t, err := scanTicket(row)
	if err != nil {
		return nil, wrapNotFound(err, "ticket not found")
	}
	return t, nil
}

func (p *Postgres) FindOpenContinuation(ctx context.Context, tenantID, projectID string, key models.ContinuationKey) (*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets
		WHERE tenant_id = $1 AND project_id = $2 AND context = $3 AND subject = $4 AND user_id = $5
		AND status != 'closed' AND is_deleted = false
		ORDER BY created_at DESC LIMIT 1`, ticketColumns)
	row := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, key.Context, key.Subject, key.UserID)
	t, err := scanTicket(row)
	if err != nil {
		return nil, wrapNotFound(err, "no open continuation")
	}
	return t, nil
}

func (p *Postgres) UpdateTicket(ctx context.Context, t *models.Ticket) error {
	query := `
		UPDATE tickets SET subject = $4, status = $5, priority = $6, category = $7, assigned_to = $8,
			sla_id = $9, is_deleted = $10, deleted_at = $11, first_response_at = $12, last_response_at = $13,
			resolved_at = $14, updated_at = NOW()
		WHERE tenant_id = $1 AND project_id = $2 AND id = $3
		RETURNING updated_at`

	row := p.conn(ctx).QueryRowxContext(ctx, query,
		t.TenantID, t.ProjectID, t.ID, t.Subject, t.Status, t.Priority, t.Category, t.AssignedTo,
		t.SlaID, t.IsDeleted, t.DeletedAt, t.FirstResponseAt, t.LastResponseAt, t.ResolvedAt)
	if err := row.Scan(&t.UpdatedAt); err != nil {
		return wrapNotFound(err, "ticket not found")
	}
	return nil
}

func (p *Postgres) DeleteTicket(ctx context.Context, tenantID, projectID, ticketID string) error {
	res, err := p.conn(ctx).ExecContext(ctx, `DELETE FROM tickets WHERE tenant_id = $1 AND project_id = $2 AND id = $3`,
		tenantID, projectID, ticketID)
	if err != nil {
		return coreerr.Transient("delete ticket", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return coreerr.NotFound("ticket not found")
	}
	return nil
}

func (p *Postgres) ListTickets(ctx context.Context, tenantID, projectID string, filters TicketFilters, page Pagination) ([]*models.Ticket, string, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE tenant_id = $1 AND project_id = $2`, ticketColumns)
	args := []interface{}{tenantID, projectID}
	argc := 2

	addInClause := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		placeholders := make([]string, len(vals))
		for i, v := range vals {
			argc++
			placeholders[i] = fmt.Sprintf("$%d", argc)
			args = append(args, v)
		}
		query += fmt.Sprintf(" AND %s IN (%s)", col, strings.Join(placeholders, ","))
	}

	statuses := make([]string, len(filters.Status))
	for i, s := range filters.Status {
		statuses[i] = string(s)
	}
	addInClause("status", statuses)

	priorities := make([]string, len(filters.Priority))
	for i, s := range filters.Priority {
		priorities[i] = string(s)
	}
	addInClause("priority", priorities)

	sources := make([]string, len(filters.Source))
	for i, s := range filters.Source {
		sources[i] = string(s)
	}
	addInClause("source", sources)

	if filters.AssigneeID != nil {
		argc++
		query += fmt.Sprintf(" AND assigned_to = $%d", argc)
		args = append(args, *filters.AssigneeID)
	}
	if filters.UserID != nil {
		argc++
		query += fmt.Sprintf(" AND user_id = $%d", argc)
		args = append(args, *filters.UserID)
	}
	if filters.Search != "" {
		argc++
		query += fmt.Sprintf(" AND subject ILIKE $%d", argc)
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsDeleted != nil {
		argc++
		query += fmt.Sprintf(" AND is_deleted = $%d", argc)
		args = append(args, *filters.IsDeleted)
	}
	if page.Cursor != "" {
		argc++
		query += fmt.Sprintf(" AND id > $%d", argc)
		args = append(args, page.Cursor)
	}

	limit := page.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	argc++
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", argc)
	args = append(args, limit+1)

	rows, err := p.conn(ctx).QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, "", coreerr.Transient("list tickets", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Number, &t.OrganizationID, &t.UserID, &t.Context, &t.Subject,
			&t.Status, &t.Priority, &t.Source, &t.Category, &t.AssignedTo, &t.SlaID, &t.IsDeleted, &t.DeletedAt,
			&t.FirstResponseAt, &t.LastResponseAt, &t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, "", coreerr.Transient("scan ticket", err)
		}
		tickets = append(tickets, &t)
	}

	var next string
	if len(tickets) > limit {
		tickets = tickets[:limit]
		next = tickets[len(tickets)-1].ID
	}
	return tickets, next, nil
}

func (p *Postgres) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE is_deleted = true AND deleted_at < $1 ORDER BY deleted_at LIMIT $2`, ticketColumns)
	rows, err := p.conn(ctx).QueryxContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, coreerr.Transient("list deleted tickets", err)
	}
	defer rows.Close()

	var out []*models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Number, &t.OrganizationID, &t.UserID, &t.Context, &t.Subject,
			&t.Status, &t.Priority, &t.Source, &t.Category, &t.AssignedTo, &t.SlaID, &t.IsDeleted, &t.DeletedAt,
			&t.FirstResponseAt, &t.LastResponseAt, &t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, coreerr.Transient("scan ticket", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

func (p *Postgres) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]*models.Ticket, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tickets t
		WHERE t.status != 'closed' AND t.sla_id IS NOT NULL
		ORDER BY t.created_at LIMIT $1`, strings.ReplaceAll(ticketColumns, "id, tenant_id", "t.id, t.tenant_id"))
	rows, err := p.conn(ctx).QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, coreerr.Transient("list overdue tickets", err)
	}
	defer rows.Close()

	var out []*models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Number, &t.OrganizationID, &t.UserID, &t.Context, &t.Subject,
			&t.Status, &t.Priority, &t.Source, &t.Category, &t.AssignedTo, &t.SlaID, &t.IsDeleted, &t.DeletedAt,
			&t.FirstResponseAt, &t.LastResponseAt, &t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, coreerr.Transient("scan ticket", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

// --- MessageStore ---

func (p *Postgres) AppendMessage(ctx context.Context, m *models.Message) error {
	query := `INSERT INTO ticket_messages (id, ticket_id, sender, message, confidence, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := p.conn(ctx).ExecContext(ctx, query, m.ID, m.TicketID, m.Sender, m.Text, m.Confidence, m.Success, m.CreatedAt)
	if err != nil {
		return coreerr.Transient("append message", err)
	}
	return nil
}

func (p *Postgres) ListMessages(ctx context.Context, ticketID string) ([]*models.Message, error) {
	query := `SELECT id, ticket_id, sender, message, confidence, success, created_at
		FROM ticket_messages WHERE ticket_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, ticketID)
	if err != nil {
		return nil, coreerr.Transient("list messages", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.TicketID, &m.Sender, &m.Text, &m.Confidence, &m.Success, &m.CreatedAt); err != nil {
			return nil, coreerr.Transient("scan message", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

// --- TagStore ---

func (p *Postgres) FindOrCreateTag(ctx context.Context, tenantID, projectID, name string) (*models.Tag, error) {
	var t models.Tag
	err := p.conn(ctx).QueryRowxContext(ctx,
		`SELECT id, tenant_id, project_id, name, color, created_at FROM tags WHERE tenant_id=$1 AND project_id=$2 AND name=$3`,
		tenantID, projectID, name).Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Name, &t.Color, &t.CreatedAt)
	if err == nil {
		return &t, nil
	}
	if err != sql.ErrNoRows {
		return nil, coreerr.Transient("find tag", err)
	}

	err = p.conn(ctx).QueryRowxContext(ctx,
		`INSERT INTO tags (id, tenant_id, project_id, name, color, created_at)
		 VALUES (gen_random_uuid(), $1, $2, $3, '', NOW())
		 ON CONFLICT (tenant_id, project_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, tenant_id, project_id, name, color, created_at`,
		tenantID, projectID, name).Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Name, &t.Color, &t.CreatedAt)
	if err != nil {
		return nil, coreerr.Transient("create tag", err)
	}
	return &t, nil
}

func (p *Postgres) AttachTag(ctx context.Context, ticketID, tagID string) error {
	_, err := p.conn(ctx).ExecContext(ctx,
		`INSERT INTO ticket_tags (ticket_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, ticketID, tagID)
	if err != nil {
		return coreerr.Transient("attach tag", err)
	}
	return nil
}

func (p *Postgres) ListTicketTags(ctx context.Context, ticketID string) ([]*models.Tag, error) {
	query := `SELECT t.id, t.tenant_id, t.project_id, t.name, t.color, t.created_at
		FROM tags t JOIN ticket_tags tt ON tt.tag_id = t.id WHERE tt.ticket_id = $1`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, ticketID)
	if err != nil {
		return nil, coreerr.Transient("list ticket tags", err)
	}
	defer rows.Close()

	var out []*models.Tag
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, coreerr.Transient("scan tag", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

func (p *Postgres) SetCategory(ctx context.Context, ticketID, category string) error {
	_, err := p.conn(ctx).ExecContext(ctx, `UPDATE tickets SET category = $2, updated_at = NOW() WHERE id = $1`, ticketID, category)
	if err != nil {
		return coreerr.Transient("set category", err)
	}
	return nil
}

// --- AttachmentStore ---

func (p *Postgres) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	query := `INSERT INTO attachments (id, ticket_id, message_id, file_name, file_path, file_size, mime_type, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW()) RETURNING created_at`
	row := p.conn(ctx).QueryRowxContext(ctx, query, a.ID, a.TicketID, a.MessageID, a.FileName, a.FilePath, a.FileSize, a.MimeType, a.UploadedBy)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return coreerr.Transient("create attachment", err)
	}
	return nil
}

func (p *Postgres) GetAttachment(ctx context.Context, attachmentID string) (*models.Attachment, error) {
	var a models.Attachment
	query := `SELECT id, ticket_id, message_id, file_name, file_path, file_size, mime_type, uploaded_by, created_at
		FROM attachments WHERE id = $1`
	err := p.conn(ctx).QueryRowxContext(ctx, query, attachmentID).
		Scan(&a.ID, &a.TicketID, &a.MessageID, &a.FileName, &a.FilePath, &a.FileSize, &a.MimeType, &a.UploadedBy, &a.CreatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "attachment not found")
	}
	return &a, nil
}

func (p *Postgres) DeleteAttachment(ctx context.Context, attachmentID string) error {
	res, err := p.conn(ctx).ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, attachmentID)
	if err != nil {
		return coreerr.Transient("delete attachment", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return coreerr.NotFound("attachment not found")
	}
	return nil
}

func (p *Postgres) ListAttachmentsByTicket(ctx context.Context, ticketID string) ([]*models.Attachment, error) {
	query := `SELECT id, ticket_id, message_id, file_name, file_path, file_size, mime_type, uploaded_by, created_at
		FROM attachments WHERE ticket_id = $1`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, ticketID)
	if err != nil {
		return nil, coreerr.Transient("list attachments", err)
	}
	defer rows.Close()

	var out []*models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.TicketID, &a.MessageID, &a.FileName, &a.FilePath, &a.FileSize, &a.MimeType, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, coreerr.Transient("scan attachment", err)
		}
		out = append(out, &a)
	}
	return out, nil
}

// --- EmailStore ---

func (p *Postgres) CreateEmailMessage(ctx context.Context, em *models.EmailMessage) error {
	query := `INSERT INTO email_messages (id, tenant_id, project_id, ticket_id, email_account_id, message_id, in_reply_to,
			subject, body_text, body_html, from_address, to_addresses, cc_addresses, bcc_addresses, status, direction,
			has_attachments, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18, NOW())
		ON CONFLICT (email_account_id, message_id) DO NOTHING
		RETURNING created_at`
	row := p.conn(ctx).QueryRowxContext(ctx, query,
		em.ID, em.TenantID, em.ProjectID, em.TicketID, em.EmailAccountID, em.MessageID, em.InReplyTo,
		em.Subject, em.BodyText, em.BodyHTML, em.From, pq.Array(em.To), pq.Array(em.Cc), pq.Array(em.Bcc),
		em.Status, em.Direction, em.HasAttachments, em.ErrorMessage)
	if err := row.Scan(&em.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			// ON CONFLICT DO NOTHING swallowed the insert: already ingested.
			return coreerr.New(coreerr.KindValidation, "email message already ingested")
		}
		return coreerr.Transient("create email message", err)
	}
	return nil
}

func (p *Postgres) GetEmailMessageByMessageID(ctx context.Context, accountID, messageID string) (*models.EmailMessage, error) {
	var em models.EmailMessage
	query := `SELECT id, tenant_id, project_id, ticket_id, email_account_id, message_id, in_reply_to, subject,
			body_text, body_html, from_address, to_addresses, cc_addresses, bcc_addresses, status, direction,
			has_attachments, error_message, created_at, sent_at, received_at
		FROM email_messages WHERE email_account_id = $1 AND message_id = $2`
	err := p.conn(ctx).QueryRowxContext(ctx, query, accountID, messageID).Scan(
		&em.ID, &em.TenantID, &em.ProjectID, &em.TicketID, &em.EmailAccountID, &em.MessageID, &em.InReplyTo, &em.Subject,
		&em.BodyText, &em.BodyHTML, &em.From, pq.Array(&em.To), pq.Array(&em.Cc), pq.Array(&em.Bcc), &em.Status, &em.Direction,
		&em.HasAttachments, &em.ErrorMessage, &em.CreatedAt, &em.SentAt, &em.ReceivedAt)
	if err != nil {
		return nil, wrapNotFound(err, "email message not found")
	}
	return &em, nil
}

func (p *Postgres) FindTicketByInReplyTo(ctx context.Context, accountID, inReplyTo string) (string, error) {
	var ticketID sql.NullString
	query := `SELECT ticket_id FROM email_messages WHERE email_account_id = $1 AND message_id = $2 AND ticket_id IS NOT NULL`
	err := p.conn(ctx).QueryRowxContext(ctx, query, accountID, inReplyTo).Scan(&ticketID)
	if err != nil {
		return "", wrapNotFound(err, "no ticket for in-reply-to")
	}
	if !ticketID.Valid {
		return "", coreerr.NotFound("no ticket for in-reply-to")
	}
	return ticketID.String, nil
}

func (p *Postgres) UpdateEmailMessage(ctx context.Context, em *models.EmailMessage) error {
	query := `UPDATE email_messages SET ticket_id = $2, status = $3, error_message = $4, sent_at = $5, received_at = $6
		WHERE id = $1`
	_, err := p.conn(ctx).ExecContext(ctx, query, em.ID, em.TicketID, em.Status, em.ErrorMessage, em.SentAt, em.ReceivedAt)
	if err != nil {
		return coreerr.Transient("update email message", err)
	}
	return nil
}

func (p *Postgres) ListEmailMessagesByTicket(ctx context.Context, ticketID string) ([]*models.EmailMessage, error) {
	query := `SELECT id, tenant_id, project_id, ticket_id, email_account_id, message_id, in_reply_to, subject,
			body_text, body_html, from_address, to_addresses, cc_addresses, bcc_addresses, status, direction,
			has_attachments, error_message, created_at, sent_at, received_at
		FROM email_messages WHERE ticket_id = $1 ORDER BY created_at ASC`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, ticketID)
	if err != nil {
		return nil, coreerr.Transient("list email messages", err)
	}
	defer rows.Close()

	var out []*models.EmailMessage
	for rows.Next() {
		var em models.EmailMessage
		if err := rows.Scan(&em.ID, &em.TenantID, &em.ProjectID, &em.TicketID, &em.EmailAccountID, &em.MessageID, &em.InReplyTo, &em.Subject,
			&em.BodyText, &em.BodyHTML, &em.From, pq.Array(&em.To), pq.Array(&em.Cc), pq.Array(&em.Bcc), &em.Status, &em.Direction,
			&em.HasAttachments, &em.ErrorMessage, &em.CreatedAt, &em.SentAt, &em.ReceivedAt); err != nil {
			return nil, coreerr.Transient("scan email message", err)
		}
		out = append(out, &em)
	}
	return out, nil
}

func (p *Postgres) LatestInboundMessageID(ctx context.Context, ticketID string) (string, error) {
	var messageID string
	query := `SELECT message_id FROM email_messages WHERE ticket_id = $1 AND direction = 'inbound'
		ORDER BY created_at DESC LIMIT 1`
	err := p.conn(ctx).QueryRowxContext(ctx, query, ticketID).Scan(&messageID)
	if err != nil {
		return "", wrapNotFound(err, "no inbound email on ticket")
	}
	return messageID, nil
}

func (p *Postgres) ListActiveIMAPAccounts(ctx context.Context) ([]*models.EmailAccount, error) {
	rows, err := p.conn(ctx).QueryxContext(ctx, accountSelectQuery+` WHERE imap_enabled = true AND is_active = true`)
	if err != nil {
		return nil, coreerr.Transient("list active imap accounts", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (p *Postgres) GetEmailAccount(ctx context.Context, accountID string) (*models.EmailAccount, error) {
	row := p.conn(ctx).QueryRowxContext(ctx, accountSelectQuery+` WHERE id = $1`, accountID)
	return scanAccountRow(row)
}

func (p *Postgres) DefaultSenderAccount(ctx context.Context, tenantID, projectID string) (*models.EmailAccount, error) {
	row := p.conn(ctx).QueryRowxContext(ctx,
		accountSelectQuery+` WHERE tenant_id=$1 AND project_id=$2 AND is_default=true AND is_active=true LIMIT 1`,
		tenantID, projectID)
	acc, err := scanAccountRow(row)
	if err == nil {
		return acc, nil
	}
	if !coreerr.Is(err, coreerr.KindNotFound) {
		return nil, err
	}
	row = p.conn(ctx).QueryRowxContext(ctx,
		accountSelectQuery+` WHERE tenant_id=$1 AND project_id=$2 AND is_active=true ORDER BY created_at LIMIT 1`,
		tenantID, projectID)
	return scanAccountRow(row)
}

const accountSelectQuery = `SELECT id, tenant_id, project_id, organization_id, address, display_name, provider,
	sealed_api_key_wrapped, sealed_api_key_cipher, smtp_host, smtp_port, smtp_use_tls,
	sealed_smtp_user_wrapped, sealed_smtp_user_cipher, sealed_smtp_pass_wrapped, sealed_smtp_pass_cipher,
	imap_host, imap_port, imap_use_tls, imap_enabled, sealed_imap_user_wrapped, sealed_imap_user_cipher,
	sealed_imap_pass_wrapped, sealed_imap_pass_cipher, last_polled_at, last_seen_uid, consecutive_failures,
	polling_disabled_at, is_active, is_default, created_at, updated_at
	FROM email_accounts`

func scanAccounts(rows *sqlx.Rows) ([]*models.EmailAccount, error) {
	var out []*models.EmailAccount
	for rows.Next() {
		acc, err := scanAccountCols(rows)
		if err != nil {
			return nil, coreerr.Transient("scan email account", err)
		}
		out = append(out, acc)
	}
	return out, nil
}

func scanAccountRow(row *sqlx.Row) (*models.EmailAccount, error) {
	acc, err := scanAccountCols(row)
	if err != nil {
		return nil, wrapNotFound(err, "email account not found")
	}
	return acc, nil
}

// scanner abstracts over *sqlx.Row and *sqlx.Rows, which share Scan's
// signature but no common interface in sqlx.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountCols(s scanner) (*models.EmailAccount, error) {
	var a models.EmailAccount
	err := s.Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.OrganizationID, &a.Address, &a.DisplayName, &a.Provider,
		&a.SealedAPIKey.WrappedKey, &a.SealedAPIKey.Ciphertext, &a.SMTPHost, &a.SMTPPort, &a.SMTPUseTLS,
		&a.SealedSMTPUser.WrappedKey, &a.SealedSMTPUser.Ciphertext, &a.SealedSMTPPass.WrappedKey, &a.SealedSMTPPass.Ciphertext,
		&a.IMAPHost, &a.IMAPPort, &a.IMAPUseTLS, &a.IMAPEnabled, &a.SealedIMAPUser.WrappedKey, &a.SealedIMAPUser.Ciphertext,
		&a.SealedIMAPPass.WrappedKey, &a.SealedIMAPPass.Ciphertext, &a.LastPolledAt, &a.LastSeenUID, &a.ConsecutiveFailures,
		&a.PollingDisabledAt, &a.IsActive, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) UpdateAccountCursor(ctx context.Context, accountID string, lastSeenUID uint32, polledAt time.Time) error {
	_, err := p.conn(ctx).ExecContext(ctx,
		`UPDATE email_accounts SET last_seen_uid = $2, last_polled_at = $3, updated_at = NOW() WHERE id = $1`,
		accountID, lastSeenUID, polledAt)
	if err != nil {
		return coreerr.Transient("update account cursor", err)
	}
	return nil
}

func (p *Postgres) RecordAccountFailure(ctx context.Context, accountID string, consecutiveFailures int, disablePolling bool) error {
	query := `UPDATE email_accounts SET consecutive_failures = $2, updated_at = NOW()`
	args := []interface{}{accountID, consecutiveFailures}
	if disablePolling {
		query += `, imap_enabled = false, polling_disabled_at = NOW()`
	}
	query += ` WHERE id = $1`
	_, err := p.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return coreerr.Transient("record account failure", err)
	}
	return nil
}

func (p *Postgres) ResetAccountFailures(ctx context.Context, accountID string) error {
	_, err := p.conn(ctx).ExecContext(ctx,
		`UPDATE email_accounts SET consecutive_failures = 0, updated_at = NOW() WHERE id = $1`, accountID)
	if err != nil {
		return coreerr.Transient("reset account failures", err)
	}
	return nil
}

func (p *Postgres) CreateEmailAccount(ctx context.Context, a *models.EmailAccount) error {
	query := `INSERT INTO email_accounts (id, tenant_id, project_id, organization_id, address, display_name, provider,
			sealed_api_key_wrapped, sealed_api_key_cipher, smtp_host, smtp_port, smtp_use_tls,
			sealed_smtp_user_wrapped, sealed_smtp_user_cipher, sealed_smtp_pass_wrapped, sealed_smtp_pass_cipher,
			imap_host, imap_port, imap_use_tls, imap_enabled, sealed_imap_user_wrapped, sealed_imap_user_cipher,
			sealed_imap_pass_wrapped, sealed_imap_pass_cipher, is_active, is_default, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,NOW(),NOW())`
	_, err := p.conn(ctx).ExecContext(ctx, query, a.ID, a.TenantID, a.ProjectID, a.OrganizationID, a.Address, a.DisplayName, a.Provider,
		a.SealedAPIKey.WrappedKey, a.SealedAPIKey.Ciphertext, a.SMTPHost, a.SMTPPort, a.SMTPUseTLS,
		a.SealedSMTPUser.WrappedKey, a.SealedSMTPUser.Ciphertext, a.SealedSMTPPass.WrappedKey, a.SealedSMTPPass.Ciphertext,
		a.IMAPHost, a.IMAPPort, a.IMAPUseTLS, a.IMAPEnabled, a.SealedIMAPUser.WrappedKey, a.SealedIMAPUser.Ciphertext,
		a.SealedIMAPPass.WrappedKey, a.SealedIMAPPass.Ciphertext, a.IsActive, a.IsDefault)
	if err != nil {
		return coreerr.Transient("create email account", err)
	}
	return nil
}

func (p *Postgres) ListEmailAccounts(ctx context.Context, tenantID, projectID string) ([]*models.EmailAccount, error) {
	rows, err := p.conn(ctx).QueryxContext(ctx,
		accountSelectQuery+` WHERE tenant_id = $1 AND project_id = $2 ORDER BY created_at ASC`, tenantID, projectID)
	if err != nil {
		return nil, coreerr.Transient("list email accounts", err)
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func (p *Postgres) UpdateEmailAccount(ctx context.Context, a *models.EmailAccount) error {
	query := `UPDATE email_accounts SET address = $2, display_name = $3, provider = $4,
			sealed_api_key_wrapped = $5, sealed_api_key_cipher = $6, smtp_host = $7, smtp_port = $8, smtp_use_tls = $9,
			sealed_smtp_user_wrapped = $10, sealed_smtp_user_cipher = $11, sealed_smtp_pass_wrapped = $12, sealed_smtp_pass_cipher = $13,
			imap_host = $14, imap_port = $15, imap_use_tls = $16, imap_enabled = $17,
			sealed_imap_user_wrapped = $18, sealed_imap_user_cipher = $19, sealed_imap_pass_wrapped = $20, sealed_imap_pass_cipher = $21,
			is_active = $22, is_default = $23, updated_at = NOW()
		WHERE id = $1`
	_, err := p.conn(ctx).ExecContext(ctx, query, a.ID, a.Address, a.DisplayName, a.Provider,
		a.SealedAPIKey.WrappedKey, a.SealedAPIKey.Ciphertext, a.SMTPHost, a.SMTPPort, a.SMTPUseTLS,
		a.SealedSMTPUser.WrappedKey, a.SealedSMTPUser.Ciphertext, a.SealedSMTPPass.WrappedKey, a.SealedSMTPPass.Ciphertext,
		a.IMAPHost, a.IMAPPort, a.IMAPUseTLS, a.IMAPEnabled, a.SealedIMAPUser.WrappedKey, a.SealedIMAPUser.Ciphertext,
		a.SealedIMAPPass.WrappedKey, a.SealedIMAPPass.Ciphertext, a.IsActive, a.IsDefault)
	if err != nil {
		return coreerr.Transient("update email account", err)
	}
	return nil
}

func (p *Postgres) GetTemplate(ctx context.Context, tenantID, projectID, templateID string) (*models.EmailTemplate, error) {
	var t models.EmailTemplate
	query := `SELECT id, tenant_id, project_id, name, subject_template, body_template
		FROM email_templates WHERE tenant_id = $1 AND project_id = $2 AND id = $3`
	err := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, templateID).
		Scan(&t.ID, &t.TenantID, &t.ProjectID, &t.Name, &t.SubjectTemplate, &t.BodyTemplate)
	if err != nil {
		return nil, wrapNotFound(err, "template not found")
	}
	return &t, nil
}

// --- RoutingStore ---

func (p *Postgres) ListActiveRoutingRules(ctx context.Context, tenantID, projectID string) ([]*models.RoutingRule, error) {
	query := `SELECT id, tenant_id, project_id, name, priority, is_active, keywords, issue_types, tags, context, priorities,
			action_type, action_value, created_at, updated_at
		FROM routing_rules WHERE tenant_id = $1 AND project_id = $2 AND is_active = true
		ORDER BY priority DESC, created_at ASC`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, coreerr.Transient("list routing rules", err)
	}
	defer rows.Close()

	var out []*models.RoutingRule
	for rows.Next() {
		var r models.RoutingRule
		var priorities pq.StringArray
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ProjectID, &r.Name, &r.Priority, &r.IsActive,
			pq.Array(&r.Conditions.Keywords), pq.Array(&r.Conditions.IssueTypes), pq.Array(&r.Conditions.Tags),
			pq.Array(&r.Conditions.Context), &priorities, &r.ActionType, &r.ActionValue, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, coreerr.Transient("scan routing rule", err)
		}
		for _, pr := range priorities {
			r.Conditions.Priority = append(r.Conditions.Priority, models.TicketPriority(pr))
		}
		out = append(out, &r)
	}
	return out, nil
}

func (p *Postgres) CreateRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	query := `INSERT INTO routing_rules (id, tenant_id, project_id, name, priority, is_active, keywords, issue_types,
			tags, context, priorities, action_type, action_value, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW(),NOW())`
	priorities := make(pq.StringArray, len(r.Conditions.Priority))
	for i, pr := range r.Conditions.Priority {
		priorities[i] = string(pr)
	}
	_, err := p.conn(ctx).ExecContext(ctx, query, r.ID, r.TenantID, r.ProjectID, r.Name, r.Priority, r.IsActive,
		pq.Array(r.Conditions.Keywords), pq.Array(r.Conditions.IssueTypes), pq.Array(r.Conditions.Tags),
		pq.Array(r.Conditions.Context), priorities, r.ActionType, r.ActionValue)
	if err != nil {
		return coreerr.Transient("create routing rule", err)
	}
	return nil
}

func (p *Postgres) ListRoutingRules(ctx context.Context, tenantID, projectID string) ([]*models.RoutingRule, error) {
	query := `SELECT id, tenant_id, project_id, name, priority, is_active, keywords, issue_types, tags, context, priorities,
			action_type, action_value, created_at, updated_at
		FROM routing_rules WHERE tenant_id = $1 AND project_id = $2
		ORDER BY priority DESC, created_at ASC`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, coreerr.Transient("list routing rules", err)
	}
	defer rows.Close()

	var out []*models.RoutingRule
	for rows.Next() {
		var r models.RoutingRule
		var priorities pq.StringArray
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ProjectID, &r.Name, &r.Priority, &r.IsActive,
			pq.Array(&r.Conditions.Keywords), pq.Array(&r.Conditions.IssueTypes), pq.Array(&r.Conditions.Tags),
			pq.Array(&r.Conditions.Context), &priorities, &r.ActionType, &r.ActionValue, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, coreerr.Transient("scan routing rule", err)
		}
		for _, pr := range priorities {
			r.Conditions.Priority = append(r.Conditions.Priority, models.TicketPriority(pr))
		}
		out = append(out, &r)
	}
	return out, nil
}

func (p *Postgres) UpdateRoutingRule(ctx context.Context, r *models.RoutingRule) error {
	priorities := make(pq.StringArray, len(r.Conditions.Priority))
	for i, pr := range r.Conditions.Priority {
		priorities[i] = string(pr)
	}
	query := `UPDATE routing_rules SET name = $3, priority = $4, is_active = $5, keywords = $6, issue_types = $7,
			tags = $8, context = $9, priorities = $10, action_type = $11, action_value = $12, updated_at = NOW()
		WHERE tenant_id = $1 AND project_id = $2 AND id = $13`
	_, err := p.conn(ctx).ExecContext(ctx, query, r.TenantID, r.ProjectID, r.Name, r.Priority, r.IsActive,
		pq.Array(r.Conditions.Keywords), pq.Array(r.Conditions.IssueTypes), pq.Array(r.Conditions.Tags),
		pq.Array(r.Conditions.Context), priorities, r.ActionType, r.ActionValue, r.ID)
	if err != nil {
		return coreerr.Transient("update routing rule", err)
	}
	return nil
}

func (p *Postgres) DeleteRoutingRule(ctx context.Context, tenantID, projectID, ruleID string) error {
	_, err := p.conn(ctx).ExecContext(ctx,
		`DELETE FROM routing_rules WHERE tenant_id = $1 AND project_id = $2 AND id = $3`, tenantID, projectID, ruleID)
	if err != nil {
		return coreerr.Transient("delete routing rule", err)
	}
	return nil
}

func (p *Postgres) CreateRoutingLog(ctx context.Context, l *models.RoutingLog) error {
	query := `INSERT INTO routing_logs (id, ticket_id, rule_id, rule_name, action_taken, matched_conditions, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())`
	_, err := p.conn(ctx).ExecContext(ctx, query, l.ID, l.TicketID, l.RuleID, l.RuleName, l.ActionTaken, l.MatchedConditions)
	if err != nil {
		return coreerr.Transient("create routing log", err)
	}
	return nil
}

// --- SlaStore ---

func (p *Postgres) GetActiveSlaByPriority(ctx context.Context, tenantID, projectID string, priority models.TicketPriority) (*models.SlaDefinition, error) {
	var s models.SlaDefinition
	var days pq.Int64Array
	query := `SELECT id, tenant_id, project_id, priority, response_time_minutes, resolution_time_minutes,
			business_hours_only, business_hours_start, business_hours_end, business_days, is_active, created_at, updated_at
		FROM sla_definitions WHERE tenant_id = $1 AND project_id = $2 AND priority = $3 AND is_active = true LIMIT 1`
	err := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, priority).Scan(
		&s.ID, &s.TenantID, &s.ProjectID, &s.Priority, &s.ResponseTimeMinutes, &s.ResolutionTimeMinutes,
		&s.BusinessHoursOnly, &s.BusinessHoursStart, &s.BusinessHoursEnd, &days, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "no active sla for priority")
	}
	for _, d := range days {
		s.BusinessDays = append(s.BusinessDays, time.Weekday(d))
	}
	return &s, nil
}

func (p *Postgres) CreateSlaDefinition(ctx context.Context, s *models.SlaDefinition) error {
	days := make(pq.Int64Array, len(s.BusinessDays))
	for i, d := range s.BusinessDays {
		days[i] = int64(d)
	}
	query := `INSERT INTO sla_definitions (id, tenant_id, project_id, priority, response_time_minutes, resolution_time_minutes,
			business_hours_only, business_hours_start, business_hours_end, business_days, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())`
	_, err := p.conn(ctx).ExecContext(ctx, query, s.ID, s.TenantID, s.ProjectID, s.Priority, s.ResponseTimeMinutes,
		s.ResolutionTimeMinutes, s.BusinessHoursOnly, s.BusinessHoursStart, s.BusinessHoursEnd, days, s.IsActive)
	if err != nil {
		return coreerr.Transient("create sla definition", err)
	}
	return nil
}

func (p *Postgres) ListSlaDefinitions(ctx context.Context, tenantID, projectID string) ([]*models.SlaDefinition, error) {
	query := `SELECT id, tenant_id, project_id, priority, response_time_minutes, resolution_time_minutes,
			business_hours_only, business_hours_start, business_hours_end, business_days, is_active, created_at, updated_at
		FROM sla_definitions WHERE tenant_id = $1 AND project_id = $2 ORDER BY priority ASC`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, tenantID, projectID)
	if err != nil {
		return nil, coreerr.Transient("list sla definitions", err)
	}
	defer rows.Close()

	var out []*models.SlaDefinition
	for rows.Next() {
		var s models.SlaDefinition
		var days pq.Int64Array
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ProjectID, &s.Priority, &s.ResponseTimeMinutes, &s.ResolutionTimeMinutes,
			&s.BusinessHoursOnly, &s.BusinessHoursStart, &s.BusinessHoursEnd, &days, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, coreerr.Transient("scan sla definition", err)
		}
		for _, d := range days {
			s.BusinessDays = append(s.BusinessDays, time.Weekday(d))
		}
		out = append(out, &s)
	}
	return out, nil
}

func (p *Postgres) UpdateSlaDefinition(ctx context.Context, s *models.SlaDefinition) error {
	days := make(pq.Int64Array, len(s.BusinessDays))
	for i, d := range s.BusinessDays {
		days[i] = int64(d)
	}
	query := `UPDATE sla_definitions SET priority = $3, response_time_minutes = $4, resolution_time_minutes = $5,
			business_hours_only = $6, business_hours_start = $7, business_hours_end = $8, business_days = $9,
			is_active = $10, updated_at = NOW()
		WHERE tenant_id = $1 AND project_id = $2 AND id = $11`
	_, err := p.conn(ctx).ExecContext(ctx, query, s.TenantID, s.ProjectID, s.Priority, s.ResponseTimeMinutes,
		s.ResolutionTimeMinutes, s.BusinessHoursOnly, s.BusinessHoursStart, s.BusinessHoursEnd, days, s.IsActive, s.ID)
	if err != nil {
		return coreerr.Transient("update sla definition", err)
	}
	return nil
}

func (p *Postgres) DeleteSlaDefinition(ctx context.Context, tenantID, projectID, slaID string) error {
	_, err := p.conn(ctx).ExecContext(ctx,
		`DELETE FROM sla_definitions WHERE tenant_id = $1 AND project_id = $2 AND id = $3`, tenantID, projectID, slaID)
	if err != nil {
		return coreerr.Transient("delete sla definition", err)
	}
	return nil
}

func (p *Postgres) CreateSlaViolation(ctx context.Context, v *models.SlaViolation) error {
	query := `INSERT INTO sla_violations (id, ticket_id, sla_id, violation_type, expected_time, actual_time,
			violation_minutes, is_resolved, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())`
	_, err := p.conn(ctx).ExecContext(ctx, query, v.ID, v.TicketID, v.SlaID, v.ViolationType, v.ExpectedTime,
		v.ActualTime, v.ViolationMinutes, v.IsResolved)
	if err != nil {
		return coreerr.Transient("create sla violation", err)
	}
	return nil
}

func (p *Postgres) HasUnresolvedViolation(ctx context.Context, ticketID string, kind models.SlaViolationType) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM sla_violations WHERE ticket_id = $1 AND violation_type = $2 AND is_resolved = false)`
	if err := p.conn(ctx).QueryRowxContext(ctx, query, ticketID, kind).Scan(&exists); err != nil {
		return false, coreerr.Transient("check sla violation", err)
	}
	return exists, nil
}

func (p *Postgres) ListViolations(ctx context.Context, ticketID string) ([]*models.SlaViolation, error) {
	query := `SELECT id, ticket_id, sla_id, violation_type, expected_time, actual_time, violation_minutes, is_resolved, created_at
		FROM sla_violations WHERE ticket_id = $1 ORDER BY created_at ASC`
	rows, err := p.conn(ctx).QueryxContext(ctx, query, ticketID)
	if err != nil {
		return nil, coreerr.Transient("list sla violations", err)
	}
	defer rows.Close()

	var out []*models.SlaViolation
	for rows.Next() {
		var v models.SlaViolation
		if err := rows.Scan(&v.ID, &v.TicketID, &v.SlaID, &v.ViolationType, &v.ExpectedTime, &v.ActualTime,
			&v.ViolationMinutes, &v.IsResolved, &v.CreatedAt); err != nil {
			return nil, coreerr.Transient("scan sla violation", err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// --- TenantStore ---

func (p *Postgres) GetCustomer(ctx context.Context, tenantID, projectID, customerID string) (*models.Customer, error) {
	var c models.Customer
	query := `SELECT id, tenant_id, project_id, email, name, created_at, updated_at
		FROM customers WHERE tenant_id = $1 AND project_id = $2 AND id = $3`
	err := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, customerID).
		Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.Email, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "customer not found")
	}
	return &c, nil
}

func (p *Postgres) FindOrCreateCustomerByEmail(ctx context.Context, tenantID, projectID, email, name string) (*models.Customer, error) {
	var c models.Customer
	query := `SELECT id, tenant_id, project_id, email, name, created_at, updated_at
		FROM customers WHERE tenant_id = $1 AND project_id = $2 AND email = $3`
	err := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, email).
		Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.Email, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err == nil {
		return &c, nil
	}
	if err != sql.ErrNoRows {
		return nil, coreerr.Transient("find customer", err)
	}

	query = `INSERT INTO customers (id, tenant_id, project_id, email, name, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (tenant_id, project_id, email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, tenant_id, project_id, email, name, created_at, updated_at`
	err = p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID, email, name).
		Scan(&c.ID, &c.TenantID, &c.ProjectID, &c.Email, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, coreerr.Transient("create customer", err)
	}
	return &c, nil
}

func (p *Postgres) GetProject(ctx context.Context, tenantID, projectID string) (*models.Project, error) {
	var pr models.Project
	query := `SELECT id, tenant_id, name, retention_days, created_at, updated_at
		FROM projects WHERE tenant_id = $1 AND id = $2`
	err := p.conn(ctx).QueryRowxContext(ctx, query, tenantID, projectID).
		Scan(&pr.ID, &pr.TenantID, &pr.Name, &pr.RetentionDays, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound(err, "project not found")
	}
	return &pr, nil
}
