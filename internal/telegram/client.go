// Package telegram is a minimal Bot API client covering what inboxvalet
// needs: sending messages with optional inline keyboards and long-polling
// getUpdates for a callback selection.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.telegram.org"
	defaultHTTPTimeout = 40 * time.Second
	defaultPollEvery   = 2 * time.Second
	// longPollLimit caps the server-side getUpdates wait per request.
	longPollLimit = 30 * time.Second
)

// Client talks to one bot and one chat.
type Client struct {
	Token      string
	ChatID     string
	BaseURL    string
	HTTPClient *http.Client
	// PollEvery is the delay between empty getUpdates rounds.
	PollEvery time.Duration
}

func NewClient(token, chatID string) (*Client, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(chatID) == "" {
		return nil, errors.New("telegram: token and chat id are required")
	}
	return &Client{
		Token:      token,
		ChatID:     chatID,
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
		PollEvery:  defaultPollEvery,
	}, nil
}

// Button is one inline keyboard button.
type Button struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

// SendMessage delivers text to the configured chat. A non-empty buttons row
// is attached as a single-row inline keyboard.
func (c *Client) SendMessage(ctx context.Context, text string, buttons []Button) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("telegram: message text must be non-empty")
	}
	payload := map[string]any{
		"chat_id":              c.ChatID,
		"text":                 text,
		"disable_notification": false,
	}
	if len(buttons) > 0 {
		payload["reply_markup"] = map[string]any{
			"inline_keyboard": [][]Button{buttons},
		}
	}
	_, err := c.post(ctx, "sendMessage", payload)
	return err
}

// AwaitSelection long-polls getUpdates until one of the expected callback
// tokens arrives, the timeout elapses, or ctx is cancelled. The matched
// callback query is acknowledged best-effort. Returns "" without error when
// nothing was selected in time.
func (c *Client) AwaitSelection(ctx context.Context, expected []string, timeout time.Duration) (string, error) {
	want := map[string]struct{}{}
	for _, token := range expected {
		if token != "" {
			want[token] = struct{}{}
		}
	}
	if len(want) == 0 {
		return "", nil
	}

	// Drain anything already queued so stale taps cannot answer this round.
	offset, err := c.drainUpdates(ctx)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		if remaining > longPollLimit {
			remaining = longPollLimit
		}
		updates, err := c.getUpdates(ctx, offset, remaining)
		if err != nil {
			return "", err
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if u.CallbackQuery == nil {
				continue
			}
			if _, ok := want[u.CallbackQuery.Data]; !ok {
				continue
			}
			if u.CallbackQuery.ID != "" {
				_ = c.answerCallback(ctx, u.CallbackQuery.ID)
			}
			return u.CallbackQuery.Data, nil
		}
		if len(updates) == 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.pollEvery()):
			}
		}
	}
	return "", nil
}

func (c *Client) drainUpdates(ctx context.Context) (int64, error) {
	updates, err := c.getUpdates(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}
	return updates[len(updates)-1].UpdateID + 1, nil
}

func (c *Client) getUpdates(ctx context.Context, offset int64, wait time.Duration) ([]update, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(wait.Seconds())))
	if offset != 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.methodURL("getUpdates")+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: build request: %w", err)
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: getUpdates failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	env, err := decodeEnvelope(res)
	if err != nil {
		return nil, err
	}
	var updates []update
	if err := json.Unmarshal(env.Result, &updates); err != nil {
		return nil, fmt.Errorf("telegram: decode updates: %w", err)
	}
	return updates, nil
}

func (c *Client) answerCallback(ctx context.Context, callbackID string) error {
	_, err := c.post(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	})
	return err
}

func (c *Client) post(ctx context.Context, method string, payload map[string]any) (*apiEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: encode %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s failed: %w", method, err)
	}
	defer func() { _ = res.Body.Close() }()
	return decodeEnvelope(res)
}

func decodeEnvelope(res *http.Response) (*apiEnvelope, error) {
	var env apiEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("telegram: decode response: %w", err)
	}
	if !env.OK {
		desc := env.Description
		if desc == "" {
			desc = res.Status
		}
		return nil, fmt.Errorf("telegram: api error: %s", desc)
	}
	return &env, nil
}

func (c *Client) methodURL(method string) string {
	base := c.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return fmt.Sprintf("%s/bot%s/%s", base, c.Token, method)
}

func (c *Client) pollEvery() time.Duration {
	if c.PollEvery <= 0 {
		return defaultPollEvery
	}
	return c.PollEvery
}
