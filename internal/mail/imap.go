package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"

	"github.com/bareuptime/convcore/internal/models"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/rs/zerolog"
)

// IMAPFetcher pulls new messages from one account's mailbox, grounded on
// the teacher's IMAPClient but producing models.ParsedEmail directly so
// the poller doesn't need its own conversion layer.
type IMAPFetcher struct {
	logger zerolog.Logger
}

func NewIMAPFetcher(logger zerolog.Logger) *IMAPFetcher {
	return &IMAPFetcher{logger: logger.With().Str("component", "imap_fetcher").Logger()}
}

// Fetch connects, authenticates, searches for messages with a UID greater
// than lastUID (or unseen, if lastUID is zero), and returns them parsed.
// The caller (poller) owns marking messages seen and persisting the new
// cursor — this method never mutates server state.
func (f *IMAPFetcher) Fetch(ctx context.Context, host string, port int, useTLS bool, username, password, folder string, lastUID uint32) ([]*models.ParsedEmail, error) {
	imapClient, err := f.connect(host, port, useTLS)
	if err != nil {
		return nil, fmt.Errorf("connect imap: %w", err)
	}
	defer imapClient.Close()

	if err := imapClient.Login(username, password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	mbox, err := imapClient.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("select mailbox %q: %w", folder, err)
	}

	f.logger.Debug().
		Str("folder", folder).
		Uint32("total_messages", mbox.Messages).
		Uint32("last_uid", lastUID).
		Msg("imap mailbox selected")

	var criteria *imap.SearchCriteria
	if lastUID > 0 {
		criteria = &imap.SearchCriteria{Uid: &imap.SeqSet{}}
		criteria.Uid.AddRange(lastUID+1, 0)
	} else {
		criteria = &imap.SearchCriteria{WithoutFlags: []string{imap.SeenFlag}}
	}

	uids, err := imapClient.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- imapClient.UidFetch(seqset, []imap.FetchItem{
			imap.FetchEnvelope,
			imap.FetchUid,
			imap.FetchRFC822Header,
			imap.FetchRFC822Text,
			imap.FetchRFC822,
		}, messages)
	}()

	var parsed []*models.ParsedEmail
	for msg := range messages {
		pe, err := f.parseMessage(msg)
		if err != nil {
			f.logger.Error().Err(err).Uint32("uid", msg.Uid).Msg("failed to parse imap message")
			continue
		}
		parsed = append(parsed, pe)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	return parsed, nil
}

// MarkSeen flags the given UIDs seen. Not called from within Fetch — the
// poller calls this only after a message is durably recorded, per §9's
// note that this step is not transactional with the store write and
// relies on the (account_id, message_id) uniqueness invariant to absorb
// any duplicate re-processing after a crash.
func (f *IMAPFetcher) MarkSeen(ctx context.Context, host string, port int, useTLS bool, username, password, folder string, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	imapClient, err := f.connect(host, port, useTLS)
	if err != nil {
		return fmt.Errorf("connect imap: %w", err)
	}
	defer imapClient.Close()

	if err := imapClient.Login(username, password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := imapClient.Select(folder, false); err != nil {
		return fmt.Errorf("select mailbox %q: %w", folder, err)
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)
	return imapClient.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.SeenFlag}, nil)
}

func (f *IMAPFetcher) connect(host string, port int, useTLS bool) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	if useTLS {
		return client.DialTLS(addr, &tls.Config{ServerName: host})
	}
	return client.Dial(addr)
}

func (f *IMAPFetcher) parseMessage(msg *imap.Message) (*models.ParsedEmail, error) {
	if msg == nil || msg.Envelope == nil {
		return nil, fmt.Errorf("message has no envelope")
	}

	parsed := &models.ParsedEmail{
		UID:       msg.Uid,
		MessageID: msg.Envelope.MessageId,
		From:      formatAddress(msg.Envelope.From),
		To:        formatAddresses(msg.Envelope.To),
		Cc:        formatAddresses(msg.Envelope.Cc),
		Subject:   msg.Envelope.Subject,
		Headers:   make(map[string][]string),
	}
	if len(msg.Envelope.InReplyTo) > 0 {
		parsed.InReplyTo = string(msg.Envelope.InReplyTo)
	}

	for _, item := range msg.Items {
		if section, ok := item.(*imap.BodySectionName); ok {
			if body, ok := msg.Body[section]; ok {
				entity, err := message.Read(body)
				if err != nil {
					f.logger.Error().Err(err).Msg("failed to read message entity")
					continue
				}
				if err := f.parseEntity(entity, parsed); err != nil {
					f.logger.Error().Err(err).Msg("failed to parse message entity")
				}
			}
		}
	}

	return parsed, nil
}

func (f *IMAPFetcher) parseEntity(entity *message.Entity, parsed *models.ParsedEmail) error {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if err := f.parseEntity(part, parsed); err != nil {
				f.logger.Error().Err(err).Msg("failed to parse message part")
			}
		}
		return nil
	}

	contentType, params, _ := entity.Header.ContentType()
	body, err := io.ReadAll(entity.Body)
	if err != nil {
		return err
	}

	disposition := entity.Header.Get("Content-Disposition")
	if strings.HasPrefix(strings.ToLower(disposition), "attachment") {
		parsed.Attachments = append(parsed.Attachments, models.EmailAttachment{
			FileName: params["filename"],
			MimeType: contentType,
			Size:     int64(len(body)),
			Content:  body,
		})
		return nil
	}

	switch strings.ToLower(contentType) {
	case "text/plain":
		parsed.BodyText = string(body)
	case "text/html":
		parsed.BodyHTML = string(body)
	}
	return nil
}

func formatAddress(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	return oneAddress(addrs[0])
}

func formatAddresses(addrs []*imap.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = oneAddress(a)
	}
	return out
}

func oneAddress(addr *imap.Address) string {
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName)
	}
	return fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
}
