package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
)

type scriptedProvider struct {
	mu    sync.Mutex
	calls int
	reqs  []ProviderRequest
	steps []func() ([]byte, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Extract(_ context.Context, req ProviderRequest) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	i := p.calls
	p.calls++
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	return p.steps[i]()
}

func reply(s string) func() ([]byte, error) { return func() ([]byte, error) { return []byte(s), nil } }

func fail(msg string) func() ([]byte, error) {
	return func() ([]byte, error) { return nil, errors.New(msg) }
}

const goodReply = `{"supplier_name":"Acme Pty Ltd","total_amount":110,"tax_amount":10,"subtotal":100,"currency":"AUD","invoice_date":"2024-05-01"}`

func newTestClient(p Provider, lenient bool) (*Client, *[]time.Duration) {
	c := NewClient(p, Config{MaxAttempts: 3, RetryDelay: time.Second, Lenient: lenient}, nil)
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return c, &slept
}

func testRequest() ExtractRequest {
	return ExtractRequest{Images: []Image{{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}}, FileName: "inv.pdf"}
}

func TestClientExtract_OK(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){reply("```json\n" + goodReply + "\n```")}}
	c, slept := newTestClient(p, false)

	out, raw, err := c.Extract(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Acme Pty Ltd", out.Supplier())
	assert.InDelta(t, 110, *out.TotalAmount, 1e-9)
	assert.JSONEq(t, goodReply, string(raw))
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *slept)

	require.Len(t, p.reqs, 1)
	assert.Contains(t, p.reqs[0].SystemPrompt, "YYYY-MM-DD")
	assert.Contains(t, p.reqs[0].SystemPrompt, "AUD")
	assert.Contains(t, p.reqs[0].UserPrompt, "inv.pdf")
	assert.NotNil(t, p.reqs[0].Schema["properties"])
}

func TestClientExtract_RetriesTransient(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){
		fail("openai status 429: rate limit"),
		fail("openai status 503: unavailable"),
		reply(goodReply),
	}}
	c, slept := newTestClient(p, false)

	_, _, err := c.Extract(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
}

func TestClientExtract_ExhaustsAttempts(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){fail("openai status 429: rate limit")}}
	c, _ := newTestClient(p, false)

	_, _, err := c.Extract(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.CodeAIRateLimit))
	assert.Equal(t, 3, p.calls)
}

func TestClientExtract_NoRetryOnPermanent(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){fail("invalid_file: cannot decode")}}
	c, slept := newTestClient(p, false)

	_, _, err := c.Extract(context.Background(), testRequest())
	assert.True(t, common.IsCode(err, common.CodeAIInvalidFile))
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, *slept)
}

func TestClientExtract_EmptyResponse(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){reply("  ")}}
	c, _ := newTestClient(p, false)

	_, _, err := c.Extract(context.Background(), testRequest())
	assert.True(t, common.IsCode(err, common.CodeAIExtractionFailed))
	assert.Equal(t, 1, p.calls)
}

func TestClientExtract_InvalidFormat(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){reply(`{"total_amount":"$12.00","vendor_name":"X"}`)}}

	strict, _ := newTestClient(p, false)
	_, _, err := strict.Extract(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.CodeAIInvalidResponse))
	assert.Equal(t, "invalid AI response format", common.PublicMessage(err))
	assert.Equal(t, 1, p.calls)

	lenient, _ := newTestClient(p, true)
	out, _, err := lenient.Extract(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "X", out.Supplier())
	assert.InDelta(t, 12.0, *out.TotalAmount, 1e-9)
}

func TestClientExtract_NotJSON(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){reply("Sorry, I can't read that.")}}
	c, _ := newTestClient(p, true)
	_, _, err := c.Extract(context.Background(), testRequest())
	assert.True(t, common.IsCode(err, common.CodeAIInvalidResponse))
}

func TestClientExtract_Cancelled(t *testing.T) {
	p := &scriptedProvider{steps: []func() ([]byte, error){reply(goodReply)}}
	c, _ := newTestClient(p, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := c.Extract(ctx, testRequest())
	assert.True(t, common.IsCode(err, common.CodeUploadAborted))
	assert.Equal(t, 0, p.calls)
}

func TestClientExtract_NoImages(t *testing.T) {
	c, _ := newTestClient(&scriptedProvider{steps: []func() ([]byte, error){reply(goodReply)}}, false)
	_, _, err := c.Extract(context.Background(), ExtractRequest{})
	assert.True(t, common.IsCode(err, common.CodeAIInvalidFile))
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), 0))
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,AQI=", DataURL("image/png", []byte{1, 2}))
	assert.Equal(t, "png", ImageFormat("image/png"))
	assert.Equal(t, "jpeg", ImageFormat(""))
}
