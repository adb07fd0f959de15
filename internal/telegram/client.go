// Package telegram is a small Bot API client covering the calls the bot
// makes: relaying catalog messages, deleting them, and the search UI.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"kinobot/internal/domain"
	"kinobot/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	maxBodyBytes   = 4 << 20
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if strings.TrimSpace(baseURL) != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRateLimit caps outgoing calls. Zero rps disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http: &http.Client{
			Timeout:   75 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	url := c.baseURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.TransportRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}()
	metrics.TransportRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	var decoded apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&decoded); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !decoded.OK {
		apiErr := &APIError{Method: method, Code: decoded.ErrorCode, Description: decoded.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if decoded.Parameters != nil && decoded.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(decoded.Parameters.RetryAfter) * time.Second
		}
		return classify(apiErr)
	}
	if result == nil || len(decoded.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// CopyMessage copies a message without a forward header and returns the id
// of the new message.
func (c *Client) CopyMessage(ctx context.Context, chatID, fromChatID, messageID int64, protect bool) (int64, error) {
	params := map[string]any{
		"chat_id":      chatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}
	if protect {
		params["protect_content"] = true
	}
	var out messageIDResult
	if err := c.call(ctx, "copyMessage", params, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (int64, error) {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	var out Message
	if err := c.call(ctx, "sendMessage", params, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

// EditMessageText replaces a message's text and keyboard. An edit that
// changes nothing is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	err := c.call(ctx, "editMessageText", params, nil)
	if IsNotModified(err) {
		return nil
	}
	return err
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string, alert bool) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
	}
	if alert {
		params["show_alert"] = true
	}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}, &updates)
	return updates, err
}

// Relay implements delivery.Transport.
func (c *Client) Relay(ctx context.Context, destination int64, loc domain.Locator, protect bool) (int64, error) {
	return c.CopyMessage(ctx, destination, loc.ContainerID, loc.ItemID, protect)
}

// Delete implements delivery.Deleter.
func (c *Client) Delete(ctx context.Context, destination, relayedID int64) error {
	return c.DeleteMessage(ctx, destination, relayedID)
}
