// Package rest is the HTTP client for the team-hub chat API. It owns
// durability; the realtime channel is best-effort fan-out on top of it.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client provides REST API access to the chat server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client. baseURL should be the base URL
// of the API, e.g. "http://localhost:8080/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the bearer token attached to every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Conversation endpoints

// ListConversations returns all conversations for the authenticated user.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	var resp []ConversationInfo
	if err := c.get(ctx, "/conversations", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SearchConversations filters conversations by name or participant.
func (c *Client) SearchConversations(ctx context.Context, query string) ([]ConversationInfo, error) {
	var resp []ConversationInfo
	path := "/conversations?search=" + url.QueryEscape(query)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateConversation creates a personal or group conversation.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (*ConversationInfo, error) {
	var resp ConversationInfo
	if err := c.post(ctx, "/conversations", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID int64) error {
	return c.del(ctx, fmt.Sprintf("/conversations/%d", conversationID))
}

// GetSettings returns a conversation's settings.
func (c *Client) GetSettings(ctx context.Context, conversationID int64) (*SettingsInfo, error) {
	var resp SettingsInfo
	if err := c.get(ctx, fmt.Sprintf("/conversations/%d/settings", conversationID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateSettings patches a conversation's settings.
func (c *Client) UpdateSettings(ctx context.Context, conversationID int64, req UpdateSettingsRequest) (*SettingsInfo, error) {
	var resp SettingsInfo
	if err := c.put(ctx, fmt.Sprintf("/conversations/%d/settings", conversationID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddMember adds a user to a group conversation.
func (c *Client) AddMember(ctx context.Context, conversationID int64, req AddMemberRequest) error {
	return c.post(ctx, fmt.Sprintf("/conversations/%d/members", conversationID), req, nil)
}

// RemoveMember removes a user from a group conversation. Removing the
// authenticated user is how a user leaves.
func (c *Client) RemoveMember(ctx context.Context, conversationID, userID int64) error {
	return c.del(ctx, fmt.Sprintf("/conversations/%d/members/%d", conversationID, userID))
}

// Message endpoints

// ListMessages returns the full message snapshot for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID int64) ([]MessageInfo, error) {
	var resp []MessageInfo
	if err := c.get(ctx, fmt.Sprintf("/conversations/%d/messages", conversationID), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateMessage persists a message and returns the authoritative record.
func (c *Client) CreateMessage(ctx context.Context, conversationID int64, req CreateMessageRequest) (*MessageInfo, error) {
	var resp MessageInfo
	if err := c.post(ctx, fmt.Sprintf("/conversations/%d/messages", conversationID), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	return c.del(ctx, fmt.Sprintf("/messages/%d", messageID))
}

// AddReaction attaches an emoji reaction for the authenticated user.
func (c *Client) AddReaction(ctx context.Context, messageID int64, req AddReactionRequest) error {
	return c.post(ctx, fmt.Sprintf("/messages/%d/reactions", messageID), req, nil)
}

// RemoveReaction removes the authenticated user's reaction.
func (c *Client) RemoveReaction(ctx context.Context, messageID int64, emoji string) error {
	return c.del(ctx, fmt.Sprintf("/messages/%d/reactions/%s", messageID, url.PathEscape(emoji)))
}

// MarkRead marks a conversation read for the authenticated user.
func (c *Client) MarkRead(ctx context.Context, conversationID int64) error {
	return c.post(ctx, fmt.Sprintf("/conversations/%d/read", conversationID), nil, nil)
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	return c.send(ctx, http.MethodPost, path, body, dest)
}

func (c *Client) put(ctx context.Context, path string, body, dest any) error {
	return c.send(ctx, http.MethodPut, path, body, dest)
}

func (c *Client) del(ctx context.Context, path string) error {
	return c.send(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) send(ctx context.Context, method, path string, body, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("api error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("http error: %s (status %d)", string(body), resp.StatusCode)
	}

	if dest != nil && len(body) > 0 {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
