// Package telegram implements the outbound Bot API client and the wire types
// exchanged with the platform. This file provides the HTTP client.
//
// The client is deliberately thin: one POST per API method, JSON body in,
// JSON envelope out. Retries and backoff are the caller's concern; every
// failed call surfaces as a typed *APIError (API-level rejection) or a raw
// transport error.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// APIError is a non-ok response from the Bot API.
type APIError struct {
	Method      string
	Description string
	ErrorCode   int
	StatusCode  int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed: %s (error_code=%d, status=%d)",
		e.Method, e.Description, e.ErrorCode, e.StatusCode)
}

// Client is an outbound Bot API client bound to a single bot token.
// The zero HTTPClient and BaseURL fall back to sane defaults.
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for token with a 30s request timeout.
func NewClient(token string) *Client {
	return &Client{
		Token:      token,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse is the Bot API envelope wrapping every method result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

// call POSTs params to the named method and unmarshals the envelope result
// into out (which may be nil for methods whose result is discarded).
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	url := fmt.Sprintf("%s/bot%s/%s", base, c.Token, method)

	var body io.Reader
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("telegram: encode %s params: %w", method, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	log.Debug().
		Str("method", method).
		Int("status", resp.StatusCode).
		Bool("ok", envelope.OK).
		Msg("telegram api call")

	if !envelope.OK {
		return &APIError{
			Method:      method,
			Description: envelope.Description,
			ErrorCode:   envelope.ErrorCode,
			StatusCode:  resp.StatusCode,
		}
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetMe returns basic information about the bot account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SendMessageParams is the payload for SendMessage.
type SendMessageParams struct {
	ChatID           int64                 `json:"chat_id"`
	Text             string                `json:"text"`
	ParseMode        string                `json:"parse_mode,omitempty"`
	ReplyToMessageID int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// SendMessage sends a new message and returns the created message as the
// platform normalized it (with the platform-assigned message id).
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var m Message
	if err := c.call(ctx, "sendMessage", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessageTextParams is the payload for EditMessageText.
type EditMessageTextParams struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText replaces the text (and keyboard) of an existing outbound
// message in place and returns the edited message.
func (c *Client) EditMessageText(ctx context.Context, params EditMessageTextParams) (*Message, error) {
	var m Message
	if err := c.call(ctx, "editMessageText", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessageReplyMarkup swaps only the inline keyboard of an existing
// message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) (*Message, error) {
	params := struct {
		ChatID      int64                 `json:"chat_id"`
		MessageID   int64                 `json:"message_id"`
		ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{chatID, messageID, markup}
	var m Message
	if err := c.call(ctx, "editMessageReplyMarkup", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SetWebhook registers url as the webhook target for this bot. secretToken,
// when non-empty, is echoed back by the platform in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string, allowedUpdates []string) error {
	params := struct {
		URL            string   `json:"url"`
		SecretToken    string   `json:"secret_token,omitempty"`
		AllowedUpdates []string `json:"allowed_updates,omitempty"`
	}{url, secretToken, allowedUpdates}
	return c.call(ctx, "setWebhook", params, nil)
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	params := struct {
		DropPendingUpdates bool `json:"drop_pending_updates,omitempty"`
	}{dropPendingUpdates}
	return c.call(ctx, "deleteWebhook", params, nil)
}

// GetWebhookInfo returns the bot's current webhook registration.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.call(ctx, "getWebhookInfo", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
