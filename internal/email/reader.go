package email

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

// IMAPReader reads and flags inbox messages over IMAP TLS.
type IMAPReader struct {
	client *client.Client
	logger *zap.Logger
}

// NewIMAPReader dials the server and logs in.
func NewIMAPReader(server string, port int, address, password string, logger *zap.Logger) (*IMAPReader, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", server, port), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing IMAP server: %w", err)
	}
	if err := c.Login(address, password); err != nil {
		if logoutErr := c.Logout(); logoutErr != nil {
			logger.Warn("IMAP logout after failed login", zap.Error(logoutErr))
		}
		return nil, fmt.Errorf("IMAP login for %s: %w", address, err)
	}
	return &IMAPReader{client: c, logger: logger}, nil
}

// Unseen fetches unread inbox messages, bodies included but unmarked:
// the fetch peeks, so a message stays unseen until MarkSeen. With
// lastNDays > 0 older messages are excluded.
func (r *IMAPReader) Unseen(lastNDays int) ([]Message, error) {
	if _, err := r.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if lastNDays > 0 {
		criteria.Since = time.Now().AddDate(0, 0, -lastNDays)
	}
	uids, err := r.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, len(uids))
	if err := r.client.UidFetch(seqset, items, fetched); err != nil {
		return nil, fmt.Errorf("fetching unseen messages: %w", err)
	}

	var out []Message
	for msg := range fetched {
		parsed, err := r.parse(msg, section)
		if errors.Is(err, errHasAttachment) {
			r.logger.Info("ignoring message with attachment", zap.Uint32("uid", msg.Uid))
			continue
		}
		if err != nil {
			r.logger.Warn("skipping unparseable message", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		out = append(out, parsed)
	}
	return out, nil
}

func (r *IMAPReader) parse(msg *imap.Message, section *imap.BodySectionName) (Message, error) {
	if msg.Envelope == nil {
		return Message{}, fmt.Errorf("message %d has no envelope", msg.Uid)
	}

	out := Message{
		UID:     msg.Uid,
		Subject: msg.Envelope.Subject,
		Date:    msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		out.From = msg.Envelope.From[0].Address()
	}
	for _, addr := range msg.Envelope.To {
		out.To = append(out.To, addr.Address())
	}

	body := msg.GetBody(section)
	if body == nil {
		return Message{}, fmt.Errorf("message %d has no body section", msg.Uid)
	}
	text, err := extractPlainText(body)
	if err != nil {
		return Message{}, err
	}
	out.Body = text
	return out, nil
}

// errHasAttachment marks a message carrying an attachment part. Such
// messages are ignored whole, never answered from their text parts.
var errHasAttachment = errors.New("message has attachment")

// extractPlainText walks every MIME part and returns the first
// text/plain inline part. A part with an attachment disposition
// discards the message with errHasAttachment.
func extractPlainText(body io.Reader) (string, error) {
	mr, err := mail.CreateReader(body)
	if err != nil {
		return "", fmt.Errorf("opening MIME reader: %w", err)
	}

	var text string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return text, nil
		}
		if err != nil {
			return "", fmt.Errorf("reading MIME part: %w", err)
		}

		switch header := part.Header.(type) {
		case *mail.AttachmentHeader:
			return "", errHasAttachment
		case *mail.InlineHeader:
			if text != "" {
				continue
			}
			contentType, _, err := header.ContentType()
			if err != nil || contentType != "text/plain" {
				continue
			}
			raw, err := io.ReadAll(part.Body)
			if err != nil {
				return "", fmt.Errorf("reading text part: %w", err)
			}
			text = strings.TrimSpace(string(raw))
		}
	}
}

// MarkSeen flags one message as read.
func (r *IMAPReader) MarkSeen(uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := r.client.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("marking message %d seen: %w", uid, err)
	}
	return nil
}

// AppendDraft stores a raw RFC 5322 message in the drafts folder.
func (r *IMAPReader) AppendDraft(folder string, raw []byte) error {
	buf := bytes.NewBuffer(raw)
	if err := r.client.Append(folder, []string{imap.DraftFlag}, time.Now(), buf); err != nil {
		return fmt.Errorf("appending draft to %s: %w", folder, err)
	}
	return nil
}

// Close logs out of the server.
func (r *IMAPReader) Close() error {
	return r.client.Logout()
}
