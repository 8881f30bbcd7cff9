// Package apex provides a client for the Apex learning platform REST API.
package apex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an Apex platform API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new Apex API client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for non-2xx backend responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apex error %d: %s", e.StatusCode, e.Message)
}

// doRequest performs an HTTP request with the caller's bearer token.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		json.Unmarshal(respBody, &errResp)
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Detail
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

// ConversationSummary is one row of the chat history listing.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Provider  string    `json:"ai_provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationMessage is one message row of a fetched conversation.
type ConversationMessage struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// listConversationsResponse is the chat history listing response.
type listConversationsResponse struct {
	Status        string                `json:"status"`
	Conversations []ConversationSummary `json:"conversations"`
}

// ListConversations fetches the user's backend conversation list.
func (c *Client) ListConversations(ctx context.Context, token string) ([]ConversationSummary, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/chat-history/", token, nil)
	if err != nil {
		return nil, err
	}

	var resp listConversationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// ConversationDetail is a conversation plus its messages.
type ConversationDetail struct {
	Conversation ConversationSummary   `json:"conversation"`
	Messages     []ConversationMessage `json:"messages"`
}

// GetConversation fetches a conversation's messages from the backend.
func (c *Client) GetConversation(ctx context.Context, token, id string) (*ConversationDetail, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/chat-history/"+id+"/", token, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status       string                `json:"status"`
		Conversation ConversationSummary   `json:"conversation"`
		Messages     []ConversationMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &ConversationDetail{Conversation: resp.Conversation, Messages: resp.Messages}, nil
}

// ArchiveConversation asks the backend to archive a conversation.
func (c *Client) ArchiveConversation(ctx context.Context, token, id string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/api/chat-history/"+id+"/", token, nil)
	return err
}

// GuideRequest is the request body for the study guide chat endpoint.
type GuideRequest struct {
	Question       string `json:"question"`
	Context        string `json:"context,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

// GuideResponse is the study guide chat response.
type GuideResponse struct {
	Status         string   `json:"status"`
	Response       string   `json:"response"`
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Suggestions    []string `json:"suggestions"`
	ConversationID string   `json:"conversation_id"`
}

// AskGuide sends a question to the AI study guide.
func (c *Client) AskGuide(ctx context.Context, token string, req GuideRequest) (*GuideResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/api/chat-guide/", token, payload)
	if err != nil {
		return nil, err
	}

	var resp GuideResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProfileResponse is the authenticated user profile.
type ProfileResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Profile fetches the profile of the user a bearer token belongs to.
// Returns nil without error when the token is not authenticated.
func (c *Client) Profile(ctx context.Context, token string) (*ProfileResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/accounts/profile/", token, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, nil
		}
		return nil, err
	}

	var resp struct {
		Status string          `json:"status"`
		User   ProfileResponse `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.User.ID == "" {
		return nil, nil
	}
	return &resp.User, nil
}
