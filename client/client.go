// Package client implements the user-side of the message API: a thin HTTP
// client and the outbound send queue that survives disconnection.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/store"
)

// Client calls the message API on behalf of one user.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New creates an API client. baseURL is the server root, without a trailing
// slash.
func New(baseURL, userID string) *Client {
	return &Client{
		baseURL:    baseURL,
		userID:     userID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SendMessage posts a message to a room and returns the authoritative copy.
func (c *Client) SendMessage(ctx context.Context, roomID string, req *chat.SendRequest) (*store.ChatMessage, error) {
	var message store.ChatMessage
	path := fmt.Sprintf("/api/v1/rooms/%s/messages", roomID)
	if err := c.do(ctx, http.MethodPost, path, req, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// UnsendMessage soft-deletes one of the user's own messages.
func (c *Client) UnsendMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/messages/"+messageID, nil, nil)
}

// MarkReceived records that this user has observed a message in a room.
func (c *Client) MarkReceived(ctx context.Context, roomID, messageID string) error {
	body := map[string]string{"userId": c.userID, "messageId": messageID}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/rooms/%s/receipts", roomID), body, nil)
}

// Catchup fetches the messages this user missed in a room while offline.
func (c *Client) Catchup(ctx context.Context, roomID string) ([]*store.ChatMessage, error) {
	var missed []*store.ChatMessage
	path := fmt.Sprintf("/api/v1/rooms/%s/catchup?userId=%s", roomID, c.userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &missed); err != nil {
		return nil, err
	}
	return missed, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}
