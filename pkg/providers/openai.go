// Package providers implements the model-backend collaborators: credential
// validation, chat completion, image generation, and audio transcription
// against an OpenAI-compatible API.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/pkg/memory"
)

const (
	defaultAPIBase     = "https://api.openai.com/v1"
	defaultHTTPTimeout = 120 * time.Second

	// WhisperModel is the transcription model used for audio messages.
	WhisperModel = "whisper-1"
)

// Message is one chat turn in the request payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromTurns converts a materialized conversation into the request shape.
func FromTurns(turns []memory.Turn) []Message {
	messages := make([]Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, Message{Role: t.Role, Content: t.Content})
	}
	return messages
}

// Client is one user's handle on the model backend, bound to that user's API
// key at registration time.
type Client struct {
	apiKey       string
	apiBase      string
	defaultModel string
	httpClient   *http.Client
}

func NewClient(apiKey, apiBase, defaultModel, proxy string) (*Client, error) {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	client := &http.Client{Timeout: defaultHTTPTimeout}
	if proxy = strings.TrimSpace(proxy); proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse openai proxy: %w", err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &Client{
		apiKey:       apiKey,
		apiBase:      apiBase,
		defaultModel: strings.TrimSpace(defaultModel),
		httpClient:   client,
	}, nil
}

func (c *Client) DefaultModel() string {
	return c.defaultModel
}

// ValidateToken checks the API key by listing models. An unauthorized
// response means the key is invalid; anything else non-2xx is a backend
// failure.
func (c *Client) ValidateToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/models", nil)
	if err != nil {
		return fmt.Errorf("create models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send models request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidToken
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("validate token: status=%d", resp.StatusCode)
	}
	return nil
}

// ChatCompletions sends the materialized conversation and returns the
// assistant's role and content.
func (c *Client) ChatCompletions(ctx context.Context, messages []Message, model string) (string, string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = c.defaultModel
	}

	requestBody := map[string]interface{}{
		"model":    model,
		"messages": messages,
	}
	body, err := c.postJSON(ctx, "/chat/completions", requestBody)
	if err != nil {
		return "", "", err
	}

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(apiResponse.Choices) == 0 {
		return "", "", fmt.Errorf("chat response has no choices")
	}
	choice := apiResponse.Choices[0].Message
	return choice.Role, strings.TrimSpace(choice.Content), nil
}

// ImageGenerations returns the URL of one generated image for the prompt.
func (c *Client) ImageGenerations(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"prompt": prompt,
		"n":      1,
		"size":   "256x256",
	}
	body, err := c.postJSON(ctx, "/images/generations", requestBody)
	if err != nil {
		return "", err
	}

	var apiResponse struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("parse image response: %w", err)
	}
	if len(apiResponse.Data) == 0 {
		return "", fmt.Errorf("image response has no data")
	}
	return apiResponse.Data[0].URL, nil
}

// AudioTranscriptions uploads the file at path and returns the transcript.
func (c *Client) AudioTranscriptions(ctx context.Context, path, model string) (string, error) {
	if model == "" {
		model = WhisperModel
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("copy audio file: %w", err)
	}
	if err := writer.WriteField("model", model); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &apiResponse); err != nil {
		return "", fmt.Errorf("parse transcription response: %w", err)
	}
	return strings.TrimSpace(apiResponse.Text), nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send openai request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("openai API request failed: status=%d error=%s", resp.StatusCode, extractAPIError(body))
	}
	return body, nil
}

func extractAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response body"
	}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}

	if len(trimmed) > 2000 {
		return trimmed[:2000] + "..."
	}
	return trimmed
}
