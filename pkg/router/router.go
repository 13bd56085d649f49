// Package router turns admitted webhook events into replies: it strips
// self-mentions, merges quoted context, keeps per-user registration state and
// conversational memory, and dispatches the command table.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/pkg/cache"
	"github.com/chatrelay/chatrelay/pkg/line"
	"github.com/chatrelay/chatrelay/pkg/logger"
	"github.com/chatrelay/chatrelay/pkg/memory"
	"github.com/chatrelay/chatrelay/pkg/providers"
	"github.com/chatrelay/chatrelay/pkg/storage"
)

const (
	cmdRegister = "/register"
	cmdHelp     = "/help"
	cmdSystem   = "/system"
	cmdClear    = "/clear"
	cmdImage    = "/image"

	helpText = `Commands:
/register <OpenAI API key> - bind your API key
/system <text> - set the system message
/clear - clear conversation history
/image <prompt> - generate an image
Anything else is sent to the chat model. Paste a link to ask about a page.`

	replyRegistered    = "Token valid. Registration complete."
	replyInvalidToken  = "Invalid token. Please register again with /register <key>."
	replyUnregistered  = "Please register first: /register <OpenAI API key>"
	replySystemUpdated = "System message updated."
	replyCleared       = "Conversation history cleared."
)

// Reply is the single outbound message produced for an admitted event.
// Exactly one of Text and ImageURL is set.
type Reply struct {
	Text     string
	ImageURL string
}

// ContentFetcher downloads message payloads (recorded audio) from the
// platform. Implemented by line.Client.
type ContentFetcher interface {
	GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

// PageReader derives text from a linked web page. Implemented by web.Reader.
type PageReader interface {
	Read(ctx context.Context, url string) (string, error)
}

// FindURL matches pkg/web's URL detection; injected so tests control it.
type FindURL func(text string) string

type Options struct {
	BotUserID   string
	ModelEngine string
	// NewClient builds a model handle for a freshly registered credential.
	NewClient func(apiKey string) (ModelClient, error)
	Store     storage.Store
	Sessions  *Sessions
	Memory    *memory.Store
	Quotes    *cache.QuoteResolver
	Content   ContentFetcher
	Pages     PageReader
	FindURL   FindURL
	TempDir   string
}

type Router struct {
	botUserID   string
	modelEngine string
	newClient   func(apiKey string) (ModelClient, error)
	store       storage.Store
	sessions    *Sessions
	memory      *memory.Store
	quotes      *cache.QuoteResolver
	content     ContentFetcher
	pages       PageReader
	findURL     FindURL
	tempDir     string
}

func New(opts Options) *Router {
	if opts.Sessions == nil {
		opts.Sessions = NewSessions()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Router{
		botUserID:   opts.BotUserID,
		modelEngine: opts.ModelEngine,
		newClient:   opts.NewClient,
		store:       opts.Store,
		sessions:    opts.Sessions,
		memory:      opts.Memory,
		quotes:      opts.Quotes,
		content:     opts.Content,
		pages:       opts.Pages,
		findURL:     opts.FindURL,
		tempDir:     opts.TempDir,
	}
}

func (r *Router) Sessions() *Sessions { return r.sessions }

// HandleText processes one admitted-or-not text event. A nil reply with nil
// error means the event was not admitted and no reply is sent.
func (r *Router) HandleText(ctx context.Context, ev *line.Event) (*Reply, error) {
	if ev == nil || ev.Message == nil {
		return nil, nil
	}
	userID := ev.Source.UserID
	text := strings.TrimSpace(ev.Message.Text)

	if !Admit(ev, text, r.botUserID) {
		logger.DebugCF("router", "Message not admitted", map[string]any{
			"source": ev.Source.Type, "message_id": ev.Message.ID,
		})
		return nil, nil
	}

	text = StripBotMention(ev.Message, text, r.botUserID)

	// Merge prior-turn context before dispatch so quoted follow-ups reach
	// the model with both texts verbatim.
	if prior, ok := r.quotes.Resolve(ev.Message); ok {
		text = fmt.Sprintf("In response to: %s\nUser adds: %s", prior, text)
	}

	logger.DebugCF("router", "Dispatching text", map[string]any{"user_id": userID})

	switch {
	case strings.HasPrefix(text, cmdRegister):
		return r.register(ctx, userID, strings.TrimSpace(strings.TrimPrefix(text, cmdRegister)))
	case strings.HasPrefix(text, cmdHelp):
		return &Reply{Text: helpText}, nil
	case strings.HasPrefix(text, cmdSystem):
		r.memory.Get(userID).SetSystemMessage(strings.TrimSpace(strings.TrimPrefix(text, cmdSystem)))
		return &Reply{Text: replySystemUpdated}, nil
	case strings.HasPrefix(text, cmdClear):
		r.memory.Get(userID).Clear()
		return &Reply{Text: replyCleared}, nil
	case strings.HasPrefix(text, cmdImage):
		return r.image(ctx, userID, strings.TrimSpace(strings.TrimPrefix(text, cmdImage)))
	default:
		return r.chat(ctx, userID, text)
	}
}

func (r *Router) register(ctx context.Context, userID, apiKey string) (*Reply, error) {
	if apiKey == "" {
		return &Reply{Text: replyInvalidToken}, nil
	}

	client, err := r.newClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("build model client: %w", err)
	}
	if err := client.ValidateToken(ctx); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return &Reply{Text: replyInvalidToken}, nil
		}
		return r.backendFailure(userID, err, false), nil
	}

	r.sessions.Set(userID, &Session{APIKey: apiKey, Client: client})
	if err := r.store.Save(map[string]string{userID: apiKey}); err != nil {
		// Registration stands for this process; only persistence failed.
		logger.ErrorCF("router", "Persist credential failed", map[string]any{
			"user_id": userID, "error": err.Error(),
		})
	}
	return &Reply{Text: replyRegistered}, nil
}

func (r *Router) image(ctx context.Context, userID, prompt string) (*Reply, error) {
	sess, ok := r.sessions.Get(userID)
	if !ok {
		return &Reply{Text: replyUnregistered}, nil
	}

	conv := r.memory.Get(userID)
	conv.Append(memory.RoleUser, prompt)

	url, err := sess.Client.ImageGenerations(ctx, prompt)
	if err != nil {
		return r.backendFailure(userID, err, true), nil
	}

	conv.Append(memory.RoleAssistant, url)
	return &Reply{ImageURL: url}, nil
}

func (r *Router) chat(ctx context.Context, userID, text string) (*Reply, error) {
	sess, ok := r.sessions.Get(userID)
	if !ok {
		return &Reply{Text: replyUnregistered}, nil
	}

	// A linked page is folded into the user turn so the window carries what
	// the model actually saw.
	if url := r.findURL(text); url != "" && r.pages != nil {
		pageText, err := r.pages.Read(ctx, url)
		if err != nil {
			logger.WarnCF("router", "Page read failed", map[string]any{
				"url": url, "error": err.Error(),
			})
		} else {
			text = text + "\n\n[Linked page content]\n" + pageText
		}
	}

	conv := r.memory.Get(userID)
	conv.Append(memory.RoleUser, text)

	role, content, err := sess.Client.ChatCompletions(ctx, providers.FromTurns(conv.Materialize()), r.modelEngine)
	if err != nil {
		return r.backendFailure(userID, err, true), nil
	}

	conv.Append(role, content)
	return &Reply{Text: content}, nil
}

// HandleAudio downloads the recording, transcribes it, and runs the
// transcript through the normal chat flow.
func (r *Router) HandleAudio(ctx context.Context, ev *line.Event) (*Reply, error) {
	if ev == nil || ev.Message == nil {
		return nil, nil
	}
	userID := ev.Source.UserID

	sess, ok := r.sessions.Get(userID)
	if !ok {
		return &Reply{Text: replyUnregistered}, nil
	}

	path, err := r.downloadAudio(ctx, ev.Message.ID)
	if err != nil {
		logger.ErrorCF("router", "Audio download failed", map[string]any{
			"message_id": ev.Message.ID, "error": err.Error(),
		})
		return &Reply{Text: "Could not fetch the audio message."}, nil
	}
	defer os.Remove(path)

	transcript, err := sess.Client.AudioTranscriptions(ctx, path, providers.WhisperModel)
	if err != nil {
		return r.backendFailure(userID, err, false), nil
	}

	conv := r.memory.Get(userID)
	conv.Append(memory.RoleUser, transcript)

	role, content, err := sess.Client.ChatCompletions(ctx, providers.FromTurns(conv.Materialize()), r.modelEngine)
	if err != nil {
		return r.backendFailure(userID, err, true), nil
	}

	conv.Append(role, content)
	return &Reply{Text: content}, nil
}

func (r *Router) downloadAudio(ctx context.Context, messageID string) (string, error) {
	body, err := r.content.GetMessageContent(ctx, messageID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	path := filepath.Join(r.tempDir, uuid.NewString()+".m4a")
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio temp file: %w", err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("write audio temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// backendFailure words the reply for a model-backend error. When clearMemory
// is set the user's window is dropped so a poisoned context is not replayed
// on the next turn.
func (r *Router) backendFailure(userID string, err error, clearMemory bool) *Reply {
	if errors.Is(err, ErrInvalidToken) {
		return &Reply{Text: replyInvalidToken}
	}
	if clearMemory {
		r.memory.Get(userID).Clear()
	}
	logger.ErrorCF("router", "Backend call failed", map[string]any{
		"user_id": userID, "error": err.Error(),
	})
	return &Reply{Text: "Backend error: " + err.Error()}
}
