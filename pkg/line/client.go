package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAPIBase     = "https://api.line.me"
	defaultDataAPIBase = "https://api-data.line.me"
	requestTimeout     = 30 * time.Second
)

// Client sends replies and fetches message content through the Messaging API.
type Client struct {
	channelToken string
	apiBase      string
	dataAPIBase  string
	httpClient   *http.Client
}

func NewClient(channelToken, apiBase, dataAPIBase string) *Client {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	dataAPIBase = strings.TrimRight(strings.TrimSpace(dataAPIBase), "/")
	if dataAPIBase == "" {
		dataAPIBase = defaultDataAPIBase
	}
	return &Client{
		channelToken: channelToken,
		apiBase:      apiBase,
		dataAPIBase:  dataAPIBase,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
}

type sendMessage struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`
}

// ReplyText sends one text message for the given reply token.
func (c *Client) ReplyText(ctx context.Context, replyToken, text string) error {
	return c.reply(ctx, replyToken, sendMessage{Type: "text", Text: text})
}

// ReplyImage sends one image message for the given reply token.
func (c *Client) ReplyImage(ctx context.Context, replyToken, originalURL, previewURL string) error {
	if previewURL == "" {
		previewURL = originalURL
	}
	return c.reply(ctx, replyToken, sendMessage{
		Type:               "image",
		OriginalContentURL: originalURL,
		PreviewImageURL:    previewURL,
	})
}

func (c *Client) reply(ctx context.Context, replyToken string, msg sendMessage) error {
	if replyToken == "" {
		return fmt.Errorf("reply token is empty")
	}
	payload := map[string]interface{}{
		"replyToken": replyToken,
		"messages":   []sendMessage{msg},
	}
	return c.post(ctx, c.apiBase+"/v2/bot/message/reply", payload)
}

// PushText sends a text message outside a reply context.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	payload := map[string]interface{}{
		"to":       to,
		"messages": []sendMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, c.apiBase+"/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal line request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create line request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send line request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("line API request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// GetMessageContent streams the binary content (e.g. recorded audio) of a
// message. The caller owns the returned reader.
func (c *Client) GetMessageContent(ctx context.Context, messageID string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataAPIBase, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch message content: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("message content request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}
