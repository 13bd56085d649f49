// Package gateway is the HTTP edge: it verifies webhook signatures, ingests
// every text message into the context cache, and fans admitted events out to
// the router, sending exactly one reply per admitted event.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chatrelay/chatrelay/pkg/cache"
	"github.com/chatrelay/chatrelay/pkg/line"
	"github.com/chatrelay/chatrelay/pkg/logger"
	"github.com/chatrelay/chatrelay/pkg/router"
)

const (
	maxBodyBytes    = 4 << 20
	dedupCacheSize  = 2048
	dedupTTL        = 10 * time.Minute
	signatureHeader = "X-Line-Signature"
)

// Replier sends the outbound side of the conversation. Implemented by
// line.Client.
type Replier interface {
	ReplyText(ctx context.Context, replyToken, text string) error
	ReplyImage(ctx context.Context, replyToken, originalURL, previewURL string) error
}

type Server struct {
	channelSecret string
	replier       Replier
	router        *router.Router
	msgCache      *cache.MessageCache
	quotes        *cache.QuoteResolver

	dedupMu    sync.Mutex
	dedupCache *lru.Cache[string, time.Time]
	now        func() time.Time

	dedupHits  int64
	httpServer *http.Server

	// async controls whether batches are processed in a goroutine after the
	// webhook gets its 200. Tests disable it.
	async bool
}

type Options struct {
	ChannelSecret string
	Replier       Replier
	Router        *router.Router
	Cache         *cache.MessageCache
	Quotes        *cache.QuoteResolver
}

func NewServer(opts Options) (*Server, error) {
	dedupCache, err := lru.New[string, time.Time](dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init dedup cache: %w", err)
	}
	return &Server{
		channelSecret: opts.ChannelSecret,
		replier:       opts.Replier,
		router:        opts.Router,
		msgCache:      opts.Cache,
		quotes:        opts.Quotes,
		dedupCache:    dedupCache,
		now:           time.Now,
		async:         true,
	}, nil
}

// Handler returns the HTTP mux for the webhook and liveness endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /callback", s.handleCallback)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chatrelay"))
	})
	return mux
}

// Start blocks serving HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	logger.InfoCF("gateway", "Webhook server listening", map[string]any{
		"addr": s.httpServer.Addr,
	})

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !line.ValidateSignature(s.channelSecret, body, r.Header.Get(signatureHeader)) {
		logger.WarnC("gateway", "Webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var webhook line.WebhookBody
	if err := json.Unmarshal(body, &webhook); err != nil {
		logger.ErrorCF("gateway", "Webhook decode failed", map[string]any{"error": err.Error()})
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	// Cache before anything else: a later message may quote one the bot
	// otherwise ignores.
	cache.Ingest(s.msgCache, s.quotes, &webhook)

	if s.async {
		go s.processBatch(&webhook)
	} else {
		s.processBatch(&webhook)
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// processBatch handles each event independently: one event's failure is
// logged and never aborts the rest of the batch.
func (s *Server) processBatch(webhook *line.WebhookBody) {
	batchID := uuid.NewString()
	for i := range webhook.Events {
		ev := &webhook.Events[i]
		if ev.Type != "message" || ev.Message == nil {
			continue
		}
		if s.isDuplicate(ev.Message.ID) {
			logger.DebugCF("gateway", "Duplicate event skipped", map[string]any{
				"message_id": ev.Message.ID,
			})
			continue
		}
		if err := s.processEvent(ev); err != nil {
			logger.ErrorCF("gateway", "Event failed", map[string]any{
				"batch_id": batchID, "message_id": ev.Message.ID, "error": err.Error(),
			})
		}
	}
}

func (s *Server) processEvent(ev *line.Event) error {
	ctx := context.Background()

	var (
		reply *router.Reply
		err   error
	)
	switch ev.Message.Type {
	case "text":
		reply, err = s.router.HandleText(ctx, ev)
	case "audio":
		reply, err = s.router.HandleAudio(ctx, ev)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if reply == nil {
		// Not admitted: no reply at all.
		return nil
	}

	if reply.ImageURL != "" {
		return s.replier.ReplyImage(ctx, ev.ReplyToken, reply.ImageURL, reply.ImageURL)
	}
	return s.replier.ReplyText(ctx, ev.ReplyToken, reply.Text)
}

// isDuplicate guards against webhook redelivery within the TTL window.
func (s *Server) isDuplicate(messageID string) bool {
	if messageID == "" {
		return false
	}
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()

	now := s.now()
	if ts, ok := s.dedupCache.Get(messageID); ok {
		if now.Sub(ts) <= dedupTTL {
			s.dedupHits++
			return true
		}
		s.dedupCache.Remove(messageID)
	}
	s.dedupCache.Add(messageID, now)
	return false
}
