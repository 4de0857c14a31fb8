package ingest

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
	"github.com/joseph-ayodele/invoice-pipeline/internal/storage"
)

type MailboxConfig struct {
	Host        string
	Port        int
	Secure      bool
	User        string
	Password    string
	Folder      string
	MarkSeen    bool
	MaxMessages int
}

// MailboxConfigFrom maps the IMAP_* settings onto a MailboxConfig.
func MailboxConfigFrom(c common.IngestConfig) MailboxConfig {
	return MailboxConfig{
		Host:        c.IMAPHost,
		Port:        c.IMAPPort,
		Secure:      c.IMAPSecure,
		User:        c.IMAPUser,
		Password:    c.IMAPPassword,
		Folder:      c.IMAPFolder,
		MarkSeen:    c.IMAPMarkSeen,
		MaxMessages: c.IMAPMaxMessages,
	}
}

// MailMessage is one raw RFC 5322 message pulled from a mailbox.
type MailMessage struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt time.Time
	Raw        []byte
}

// MailFetcher returns unseen messages from the configured folder.
type MailFetcher interface {
	FetchUnseen(ctx context.Context) ([]MailMessage, error)
}

type IMAPFetcher struct {
	cfg MailboxConfig
}

func NewIMAPFetcher(cfg MailboxConfig) (*IMAPFetcher, error) {
	if cfg.Host == "" {
		return nil, common.NewAppError(common.CodeConfigError, "IMAP_HOST is required", common.ErrInvalidInput)
	}
	if cfg.User == "" || cfg.Password == "" {
		return nil, common.NewAppError(common.CodeConfigError, "IMAP_USER and IMAP_PASSWORD are required", common.ErrInvalidInput)
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 50
	}
	return &IMAPFetcher{cfg: cfg}, nil
}

// FetchUnseen logs in, reads up to MaxMessages of the newest unseen messages and
// optionally flags them \Seen. The IMAP client is not context aware; ctx is only
// checked between steps.
func (f *IMAPFetcher) FetchUnseen(ctx context.Context) ([]MailMessage, error) {
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	var client *imapclient.Client
	var err error
	if f.cfg.Secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: f.cfg.Host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	defer func() { _ = client.Logout() }()

	if err := client.Login(f.cfg.User, f.cfg.Password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select(f.cfg.Folder, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", f.cfg.Folder, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > f.cfg.MaxMessages {
		ids = ids[len(ids)-f.cfg.MaxMessages:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	out := make([]MailMessage, 0, len(ids))
	seen := new(imap.SeqSet)
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = fmt.Errorf("imap read body: %w", err)
			continue
		}

		m := MailMessage{Raw: raw, ReceivedAt: time.Now().UTC()}
		if msg.Envelope != nil {
			m.MessageID = msg.Envelope.MessageId
			m.Subject = msg.Envelope.Subject
			m.From = formatAddresses(msg.Envelope.From)
		}
		if m.MessageID == "" {
			m.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
		}
		if !msg.InternalDate.IsZero() {
			m.ReceivedAt = msg.InternalDate.UTC()
		}
		out = append(out, m)
		seen.AddNum(msg.SeqNum)
	}
	if err := <-fetchDone; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}

	if f.cfg.MarkSeen && !seen.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := client.Store(seen, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return out, fmt.Errorf("imap mark seen: %w", err)
		}
	}
	return out, nil
}

func formatAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}

// Attachments parses a raw message and returns every attached or inline part that
// is a supported invoice file. Unsupported parts are skipped.
func Attachments(raw []byte, maxBytes int64) ([]entity.SourceFile, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	out := make([]entity.SourceFile, 0, len(parts))
	for i, p := range parts {
		if p == nil || len(p.Content) == 0 {
			continue
		}
		if maxBytes > 0 && int64(len(p.Content)) > maxBytes {
			continue
		}
		name := strings.TrimSpace(p.FileName)
		declared := p.ContentType
		if t := constants.MIMETypeForExt(filepath.Ext(name)); t != "" {
			declared = t
		}
		if name == "" {
			name = fmt.Sprintf("attachment-%d.%s", i+1, storage.ExtForContentType(declared))
		}
		src, err := NewSource(name, p.Content, declared)
		if err != nil {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

// MailboxIngestor submits the invoice attachments of unseen messages.
type MailboxIngestor struct {
	fetcher   MailFetcher
	submitter Submitter
	userID    string
	maxBytes  int64
	logger    *slog.Logger
}

func NewMailboxIngestor(f MailFetcher, s Submitter, userID string, maxBytes int64, logger *slog.Logger) *MailboxIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &MailboxIngestor{fetcher: f, submitter: s, userID: userID, maxBytes: maxBytes, logger: logger}
}

// Poll runs one fetch cycle. A message that cannot be parsed is logged and skipped.
func (m *MailboxIngestor) Poll(ctx context.Context) ([]IngestionResult, error) {
	msgs, err := m.fetcher.FetchUnseen(ctx)
	if err != nil {
		return nil, err
	}
	var results []IngestionResult
	for _, msg := range msgs {
		files, err := Attachments(msg.Raw, m.maxBytes)
		if err != nil {
			m.logger.Warn("mailbox.parse_failed", "message_id", msg.MessageID, "error", err)
			results = append(results, IngestionResult{SourcePath: "mail:" + msg.MessageID, Err: err.Error()})
			continue
		}
		if len(files) == 0 {
			m.logger.Debug("mailbox.no_attachments", "message_id", msg.MessageID, "subject", msg.Subject)
			continue
		}
		for _, src := range files {
			r := IngestionResult{SourcePath: "mail:" + msg.MessageID + "/" + src.Name, HashHex: src.SHA256}
			if !msg.ReceivedAt.IsZero() {
				src.ReceivedAt = msg.ReceivedAt
			}
			snap, err := m.submitter.Submit(ctx, m.userID, src)
			if err != nil {
				r.Err = err.Error()
				m.logger.Error("mailbox.submit_failed", "message_id", msg.MessageID, "file", src.Name, "error", err)
			} else {
				r.JobID = snap.ID.String()
			}
			results = append(results, r)
		}
	}
	m.logger.Info("mailbox.poll.done", "messages", len(msgs), "files", len(results))
	return results, nil
}

// Run polls on every interval tick until ctx is done.
func (m *MailboxIngestor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := m.Poll(ctx); err != nil {
			m.logger.Warn("mailbox.poll_failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
