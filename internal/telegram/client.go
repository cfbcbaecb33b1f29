package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/novapulse/pwa-bridge/internal/bridge"
)

// Client implements bridge.Relay against the Telegram Bot API. Threads are
// forum topics inside the staff supergroup; thread ids travel as strings in
// the rest of the system (the record store keeps them as text) and convert
// to integers at this boundary.
type Client struct {
	baseURL      string
	token        string
	staffGroupID int64
	httpc        *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a different API host (tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

func NewClient(token string, staffGroupID int64, opts ...Option) *Client {
	c := &Client{
		baseURL:      "https://api.telegram.org",
		token:        token,
		staffGroupID: staffGroupID,
		httpc:        &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SendToThread(ctx context.Context, threadID, text string, buttons []bridge.Button) (string, error) {
	tid, err := parseThreadID(threadID)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"chat_id":           c.staffGroupID,
		"message_thread_id": tid,
		"text":              text,
	}
	if markup := inlineKeyboard(buttons); markup != nil {
		body["reply_markup"] = markup
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", body, &result); err != nil {
		return "", err
	}
	return strconv.FormatInt(result.MessageID, 10), nil
}

func (c *Client) EditMessage(ctx context.Context, messageID, text string, buttons []bridge.Button) error {
	mid, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return &bridge.DeliveryError{System: "telegram", Endpoint: "editMessageText",
			Err: fmt.Errorf("bad message id %q: %w", messageID, err)}
	}
	body := map[string]any{
		"chat_id":    c.staffGroupID,
		"message_id": mid,
		"text":       text,
	}
	if markup := inlineKeyboard(buttons); markup != nil {
		body["reply_markup"] = markup
	}
	return c.call(ctx, "editMessageText", body, nil)
}

func (c *Client) CreateThread(ctx context.Context, title string) (string, error) {
	var result struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	err := c.call(ctx, "createForumTopic", map[string]any{
		"chat_id": c.staffGroupID,
		"name":    title,
	}, &result)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(result.MessageThreadID, 10), nil
}

func (c *Client) AnswerInteraction(ctx context.Context, interactionID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": interactionID,
	}, nil)
}

func (c *Client) call(ctx context.Context, method string, body map[string]any, result any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &bridge.DeliveryError{System: "telegram", Endpoint: method, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &bridge.DeliveryError{
			System:   "telegram",
			Endpoint: method,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("telegram api error: %s body=%s", resp.Status, respBody),
		}
	}

	var envelope struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &bridge.DeliveryError{System: "telegram", Endpoint: method, Err: err}
	}
	if !envelope.OK {
		return &bridge.DeliveryError{System: "telegram", Endpoint: method,
			Err: fmt.Errorf("telegram api returned ok=false")}
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return &bridge.DeliveryError{System: "telegram", Endpoint: method, Err: err}
		}
	}
	return nil
}

func parseThreadID(threadID string) (int64, error) {
	tid, err := strconv.ParseInt(threadID, 10, 64)
	if err != nil {
		return 0, &bridge.DeliveryError{System: "telegram", Endpoint: "sendMessage",
			Err: fmt.Errorf("bad thread id %q: %w", threadID, err)}
	}
	return tid, nil
}

func inlineKeyboard(buttons []bridge.Button) map[string]any {
	if len(buttons) == 0 {
		return nil
	}
	row := make([]map[string]string, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, map[string]string{
			"text":          b.Label,
			"callback_data": b.Action,
		})
	}
	return map[string]any{"inline_keyboard": [][]map[string]string{row}}
}
