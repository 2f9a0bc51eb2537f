package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	chloeerrors "github.com/chloebot/chloe/errors"
	"github.com/chloebot/chloe/server/cooldown"
	"github.com/chloebot/chloe/server/metrics"
)

type posted struct {
	channel string
	text    string
}

type fakeMessenger struct {
	mu      sync.Mutex
	posts   []posted
	postErr error
}

func (m *fakeMessenger) PostMessage(_ context.Context, channel, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, posted{channel: channel, text: text})
	return m.postErr
}

func (m *fakeMessenger) DownloadFile(context.Context, string, io.Writer) error {
	return nil
}

func (m *fakeMessenger) sent() []posted {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]posted, len(m.posts))
	copy(out, m.posts)
	return out
}

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

func (c *fakeCompleter) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.prompts))
	copy(out, c.prompts)
	return out
}

type fakeExtractor struct {
	texts    map[string]string
	err      error
	locators []string
}

func (e *fakeExtractor) ExtractText(_ context.Context, locator string) (string, error) {
	e.locators = append(e.locators, locator)
	if e.err != nil {
		return "", e.err
	}
	return e.texts[locator], nil
}

type fixture struct {
	handler   *Handler
	messenger *fakeMessenger
	completer *fakeCompleter
	extractor *fakeExtractor
	cooldowns *cooldown.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		messenger: &fakeMessenger{},
		completer: &fakeCompleter{reply: "hello from the model"},
		extractor: &fakeExtractor{texts: map[string]string{}},
		cooldowns: cooldown.NewTracker(7*time.Second, zap.NewNop()),
	}
	f.handler = NewHandler(f.messenger, f.completer, f.extractor, f.cooldowns, metrics.NewMetrics(), zap.NewNop())
	return f
}

func (f *fixture) deliver(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(raw))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func messageBody(user, text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "event_callback",
		"event": map[string]interface{}{
			"type":    "message",
			"channel": "C123",
			"user":    user,
			"text":    text,
		},
	}
}

func TestURLVerificationEchoesChallenge(t *testing.T) {
	f := newFixture(t)
	w := f.deliver(t, map[string]string{
		"type":      "url_verification",
		"challenge": "abc123",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "abc123", w.Body.String())
	assert.Empty(t, f.messenger.sent())
	assert.Empty(t, f.completer.seen())
}

func TestMessageProducesReply(t *testing.T) {
	f := newFixture(t)
	w := f.deliver(t, messageBody("U1", "what is the weather?"))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"what is the weather "}, f.completer.seen())
	posts := f.messenger.sent()
	require.Len(t, posts, 1)
	assert.Equal(t, "C123", posts[0].channel)
	assert.Equal(t, "hello from the model", posts[0].text)
}

func TestNonMessageEventsAreIgnored(t *testing.T) {
	f := newFixture(t)

	bodies := []map[string]interface{}{
		{"type": "event_callback", "event": map[string]interface{}{"type": "reaction_added", "channel": "C123", "user": "U1"}},
		{"type": "event_callback"},
		{"type": "event_callback", "event": map[string]interface{}{"type": "message", "channel": "C123"}},
		{"type": "event_callback", "event": map[string]interface{}{"type": "message", "channel": "C123", "user": "U1", "subtype": "message_changed"}},
		{"type": "event_callback", "event": map[string]interface{}{"type": "message", "channel": "C123", "user": "U1", "bot_id": "B9"}},
	}
	for _, body := range bodies {
		w := f.deliver(t, body)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Empty(t, f.messenger.sent())
	assert.Empty(t, f.completer.seen())
}

func TestUndecodableBodyIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.messenger.sent())
}

func TestCooldownRejectionPostsNotice(t *testing.T) {
	f := newFixture(t)

	w := f.deliver(t, messageBody("U1", "first"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.deliver(t, messageBody("U1", "second"))
	assert.Equal(t, http.StatusOK, w.Code)

	posts := f.messenger.sent()
	require.Len(t, posts, 2)
	assert.Equal(t, "hello from the model", posts[0].text)
	assert.Equal(t, "You're on cooldown. Please wait 7 seconds.", posts[1].text)
	assert.Equal(t, []string{"first"}, f.completer.seen())
}

func TestCooldownIsPerUser(t *testing.T) {
	f := newFixture(t)

	f.deliver(t, messageBody("U1", "one"))
	f.deliver(t, messageBody("U2", "two"))

	assert.Equal(t, []string{"one", "two"}, f.completer.seen())
}

func TestCooldownRearmsAfterFailedCompletion(t *testing.T) {
	f := newFixture(t)
	f.completer.err = chloeerrors.NewTransient("backend unavailable", nil)

	f.deliver(t, messageBody("U1", "first"))
	f.deliver(t, messageBody("U1", "second"))

	posts := f.messenger.sent()
	require.Len(t, posts, 2)
	assert.Equal(t, ErrorReply, posts[0].text)
	assert.Contains(t, posts[1].text, "on cooldown")
	assert.Equal(t, []string{"first"}, f.completer.seen())
}

func TestCompletionFailurePostsFixedError(t *testing.T) {
	f := newFixture(t)
	f.completer.err = chloeerrors.NewFatal("completion backend rejected the request", nil)

	f.deliver(t, messageBody("U1", "hello"))

	posts := f.messenger.sent()
	require.Len(t, posts, 1)
	assert.Equal(t, ErrorReply, posts[0].text)
}

func TestPDFAttachmentsAugmentPrompt(t *testing.T) {
	f := newFixture(t)
	f.extractor.texts["https://files.example/a.pdf"] = "alpha body"
	f.extractor.texts["https://files.example/b.pdf"] = "beta body"

	body := messageBody("U1", "summarize these")
	body["event"].(map[string]interface{})["files"] = []map[string]string{
		{"filetype": "pdf", "url_private": "https://files.example/a.pdf"},
		{"filetype": "png", "url_private": "https://files.example/c.png"},
		{"filetype": "pdf", "url_private": "https://files.example/b.pdf"},
	}
	f.deliver(t, body)

	require.Equal(t, []string{"summarize these alpha body beta body"}, f.completer.seen())
	assert.Equal(t, []string{"https://files.example/a.pdf", "https://files.example/b.pdf"}, f.extractor.locators)
}

func TestExtractionFailureAbortsPipeline(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = chloeerrors.NewFatal("document could not be parsed", nil)

	body := messageBody("U1", "read this")
	body["event"].(map[string]interface{})["files"] = []map[string]string{
		{"filetype": "pdf", "url_private": "https://files.example/bad.pdf"},
	}
	w := f.deliver(t, body)

	assert.Equal(t, http.StatusOK, w.Code)
	posts := f.messenger.sent()
	require.Len(t, posts, 1)
	assert.Equal(t, ErrorReply, posts[0].text)
	assert.Empty(t, f.completer.seen())
}

func TestPromptIsSanitized(t *testing.T) {
	f := newFixture(t)
	secret := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"
	require.Len(t, secret, 32)

	f.deliver(t, messageBody("U1", fmt.Sprintf("my key is %s!!", secret)))

	require.Equal(t, []string{"my key is API_KEY "}, f.completer.seen())
}

func TestPostFailureStillAcknowledges(t *testing.T) {
	f := newFixture(t)
	f.messenger.postErr = fmt.Errorf("channel_not_found")

	w := f.deliver(t, messageBody("U1", "hello"))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.messenger.sent(), 1)
}
