package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/chatrelay/pkg/cache"
	"github.com/chatrelay/chatrelay/pkg/memory"
	"github.com/chatrelay/chatrelay/pkg/router"
	"github.com/chatrelay/chatrelay/pkg/storage"
)

const testSecret = "channel-secret"

type recordingReplier struct {
	texts  []string
	images []string
}

func (r *recordingReplier) ReplyText(ctx context.Context, replyToken, text string) error {
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingReplier) ReplyImage(ctx context.Context, replyToken, originalURL, previewURL string) error {
	r.images = append(r.images, originalURL)
	return nil
}

func newTestServer(t *testing.T) (*Server, *recordingReplier) {
	t.Helper()
	msgCache := cache.NewMessageCache(100)
	quotes := cache.NewQuoteResolver(msgCache)

	rt := router.New(router.Options{
		BotUserID: "bot-id",
		NewClient: func(apiKey string) (router.ModelClient, error) {
			t.Fatal("NewClient should not be called in gateway tests")
			return nil, nil
		},
		Store:   storage.NewFileStore(filepath.Join(t.TempDir(), "db.json")),
		Memory:  memory.NewStore("sys", 2),
		Quotes:  quotes,
		FindURL: func(string) string { return "" },
	})

	replier := &recordingReplier{}
	srv, err := NewServer(Options{
		ChannelSecret: testSecret,
		Replier:       replier,
		Router:        rt,
		Cache:         msgCache,
		Quotes:        quotes,
	})
	require.NoError(t, err)
	srv.async = false
	return srv, replier
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, handler http.Handler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCallback_RejectsBadSignature(t *testing.T) {
	srv, _ := newTestServer(t)
	body := []byte(`{"events":[]}`)

	rec := post(t, srv.Handler(), body, "bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, srv.Handler(), body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCallback_RejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	body := []byte(`{not json`)
	rec := post(t, srv.Handler(), body, sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_CachesIgnoredGroupMessages(t *testing.T) {
	srv, replier := newTestServer(t)
	body := []byte(`{"events":[{
		"type": "message",
		"replyToken": "rt1",
		"source": {"type": "group", "userId": "u1", "groupId": "g1"},
		"message": {"id": "m1", "type": "text", "text": "not for the bot"}
	}]}`)

	rec := post(t, srv.Handler(), body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	// No reply for a non-admitted group message, but the text is cached so a
	// later quote can still resolve it.
	assert.Empty(t, replier.texts)
	text, ok := srv.msgCache.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "not for the bot", text)
}

func TestCallback_RepliesOncePerAdmittedEvent(t *testing.T) {
	srv, replier := newTestServer(t)
	body := []byte(`{"events":[
		{
			"type": "message",
			"replyToken": "rt1",
			"source": {"type": "user", "userId": "alice"},
			"message": {"id": "m1", "type": "text", "text": "/help"}
		},
		{
			"type": "message",
			"replyToken": "rt2",
			"source": {"type": "user", "userId": "bob"},
			"message": {"id": "m2", "type": "text", "text": "/help"}
		}
	]}`)

	rec := post(t, srv.Handler(), body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, replier.texts, 2)
}

func TestCallback_DedupSuppressesRedelivery(t *testing.T) {
	srv, replier := newTestServer(t)
	body := []byte(`{"events":[{
		"type": "message",
		"replyToken": "rt1",
		"source": {"type": "user", "userId": "alice"},
		"message": {"id": "m1", "type": "text", "text": "/help"}
	}]}`)

	post(t, srv.Handler(), body, sign(body))
	post(t, srv.Handler(), body, sign(body))

	assert.Len(t, replier.texts, 1, "redelivered event must not produce a second reply")
}

func TestCallback_BatchSurvivesOneBadEvent(t *testing.T) {
	srv, replier := newTestServer(t)
	// First event has no message payload; second is fine.
	body := []byte(`{"events":[
		{"type": "message", "replyToken": "rt0"},
		{
			"type": "message",
			"replyToken": "rt1",
			"source": {"type": "user", "userId": "alice"},
			"message": {"id": "m1", "type": "text", "text": "/help"}
		}
	]}`)

	rec := post(t, srv.Handler(), body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, replier.texts, 1)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
