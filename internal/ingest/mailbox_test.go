package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

func buildMessage(parts ...string) []byte {
	var b strings.Builder
	b.WriteString("From: Billing <billing@telstra.example>\r\n")
	b.WriteString("To: me@example.com\r\n")
	b.WriteString("Subject: Your bill\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n\r\n")
	b.WriteString("--BOUNDARY\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nInvoice attached.\r\n")
	for _, p := range parts {
		b.WriteString("--BOUNDARY\r\n")
		b.WriteString(p)
	}
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}

func attachmentPart(name, contentType string, data []byte) string {
	return "Content-Type: " + contentType + "; name=\"" + name + "\"\r\n" +
		"Content-Disposition: attachment; filename=\"" + name + "\"\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" +
		base64.StdEncoding.EncodeToString(data) + "\r\n"
}

func TestAttachments(t *testing.T) {
	img := pngBytes(t, 12)
	raw := buildMessage(
		attachmentPart("bill.png", "application/octet-stream", img),
		attachmentPart("notes.csv", "text/csv", []byte("a,b\n1,2\n")),
	)

	files, err := Attachments(raw, 0)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "bill.png", files[0].Name)
	assert.Equal(t, constants.MIMETypePNG, files[0].MIMEType)
	assert.Equal(t, img, files[0].Data)
	assert.Equal(t, int64(len(img)), files[0].Size)
}

func TestAttachments_SizeLimit(t *testing.T) {
	raw := buildMessage(attachmentPart("bill.png", "image/png", pngBytes(t, 1)))
	files, err := Attachments(raw, 10)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFormatAddresses(t *testing.T) {
	got := formatAddresses([]*imap.Address{
		{PersonalName: "Billing", MailboxName: "billing", HostName: "telstra.example"},
		nil,
		{MailboxName: "ops", HostName: "example.com"},
	})
	assert.Equal(t, "Billing <billing@telstra.example>, ops@example.com", got)
	assert.Empty(t, formatAddresses(nil))
}

func TestNewIMAPFetcher_Validates(t *testing.T) {
	_, err := NewIMAPFetcher(MailboxConfig{})
	assert.True(t, common.IsCode(err, common.CodeConfigError))

	f, err := NewIMAPFetcher(MailboxConfig{Host: "imap.example.com", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "INBOX", f.cfg.Folder)
	assert.Equal(t, 993, f.cfg.Port)
	assert.Equal(t, 50, f.cfg.MaxMessages)
}

type fakeFetcher struct {
	msgs []MailMessage
	err  error
}

func (f *fakeFetcher) FetchUnseen(context.Context) ([]MailMessage, error) { return f.msgs, f.err }

func TestMailboxIngestor_Poll(t *testing.T) {
	received := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{msgs: []MailMessage{
		{MessageID: "m1", Raw: buildMessage(attachmentPart("bill.png", "image/png", pngBytes(t, 5))), ReceivedAt: received},
		{MessageID: "m2", Raw: buildMessage()},
	}}
	sub := &fakeSubmitter{}
	m := NewMailboxIngestor(fetcher, sub, "u1", 0, testLogger())

	results, err := m.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mail:m1/bill.png", results[0].SourcePath)
	assert.NotEmpty(t, results[0].JobID)
	require.Equal(t, 1, sub.count())
	assert.Equal(t, received, sub.got[0].ReceivedAt)
}

func TestMailboxIngestor_PollFetchError(t *testing.T) {
	m := NewMailboxIngestor(&fakeFetcher{err: errors.New("login failed")}, &fakeSubmitter{}, "u1", 0, testLogger())
	_, err := m.Poll(context.Background())
	assert.Error(t, err)
}

func TestMailboxIngestor_RunStopsOnCancel(t *testing.T) {
	m := NewMailboxIngestor(&fakeFetcher{}, &fakeSubmitter{}, "u1", 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Run(ctx, time.Millisecond), context.Canceled)
	assert.Error(t, m.Run(context.Background(), 0))
}
