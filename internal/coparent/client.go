package coparent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/petlink/backend/internal/models"
)

// HTTPDoer is satisfied by *http.Client and by test doubles.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// InviteRequest is the wire body of a send-invite call.
type InviteRequest struct {
	InviteeName string `json:"inviteeName"`
	Email       string `json:"email"`
	CompanionID string `json:"companionId"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// API is the set of remote co-parent operations used by Service.
type API interface {
	ListByCompanion(ctx context.Context, companionID, token string) ([]json.RawMessage, error)
	ListByParent(ctx context.Context, parentID, token string) ([]json.RawMessage, error)
	SendInvite(ctx context.Context, req InviteRequest, token string) (json.RawMessage, error)
	ListPendingInvites(ctx context.Context, token string) ([]json.RawMessage, error)
	AcceptInvite(ctx context.Context, inviteToken, token string) (string, error)
	DeclineInvite(ctx context.Context, inviteToken, token string) (string, error)
	UpdatePermissions(ctx context.Context, companionID, coParentID string, perms models.CoParentPermissions, token string) (json.RawMessage, error)
	PromoteToPrimary(ctx context.Context, companionID, coParentID, token string) (bool, error)
	Remove(ctx context.Context, companionID, coParentID, token string) (bool, error)
}

// Client issues co-parent REST calls. It holds no credentials; every call
// carries the bearer token supplied by the caller.
type Client struct {
	BaseURL string
	HTTP    HTTPDoer
}

// NewClient constructs a Client targeting baseURL. A nil doer selects http.DefaultClient.
func NewClient(baseURL string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), HTTP: doer}
}

// ListByCompanion returns the raw link records for a companion.
func (c *Client) ListByCompanion(ctx context.Context, companionID, token string) ([]json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/parent-companion/companion/"+url.PathEscape(companionID), nil, token)
	if err != nil {
		return nil, err
	}
	return unwrapList(body, "links"), nil
}

// ListByParent returns the raw link records for a parent.
func (c *Client) ListByParent(ctx context.Context, parentID, token string) ([]json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/parent-companion/parent/"+url.PathEscape(parentID), nil, token)
	if err != nil {
		return nil, err
	}
	return unwrapList(body, "links"), nil
}

// SendInvite creates a co-parent invite and returns the server's echo.
func (c *Client) SendInvite(ctx context.Context, req InviteRequest, token string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPost, "/v1/coparent-invite/sent", req, token)
	if err != nil {
		return nil, err
	}
	return rawObject(body), nil
}

// ListPendingInvites returns the raw pending invites visible to the caller.
func (c *Client) ListPendingInvites(ctx context.Context, token string) ([]json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/coparent-invite/pending", nil, token)
	if err != nil {
		return nil, err
	}
	return unwrapList(body, "pendingInvites"), nil
}

// AcceptInvite accepts the invite identified by inviteToken and echoes it back.
func (c *Client) AcceptInvite(ctx context.Context, inviteToken, token string) (string, error) {
	if _, err := c.do(ctx, http.MethodPost, "/v1/coparent-invite/accept", map[string]string{"token": inviteToken}, token); err != nil {
		return "", err
	}
	return inviteToken, nil
}

// DeclineInvite declines the invite identified by inviteToken and echoes it back.
func (c *Client) DeclineInvite(ctx context.Context, inviteToken, token string) (string, error) {
	if _, err := c.do(ctx, http.MethodPost, "/v1/coparent-invite/decline", map[string]string{"token": inviteToken}, token); err != nil {
		return "", err
	}
	return inviteToken, nil
}

// UpdatePermissions replaces the permissions of a co-parent on a companion.
func (c *Client) UpdatePermissions(ctx context.Context, companionID, coParentID string, perms models.CoParentPermissions, token string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodPatch, linkPath(companionID, coParentID)+"/permissions", perms, token)
	if err != nil {
		return nil, err
	}
	return rawObject(body), nil
}

// PromoteToPrimary makes the co-parent the companion's primary parent.
func (c *Client) PromoteToPrimary(ctx context.Context, companionID, coParentID, token string) (bool, error) {
	if _, err := c.do(ctx, http.MethodPost, linkPath(companionID, coParentID)+"/promote", struct{}{}, token); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the co-parent's link to the companion.
func (c *Client) Remove(ctx context.Context, companionID, coParentID, token string) (bool, error) {
	if _, err := c.do(ctx, http.MethodDelete, linkPath(companionID, coParentID), nil, token); err != nil {
		return false, err
	}
	return true, nil
}

// RefreshSession exchanges a refresh token for a new session through
// POST /api/v1/auth/refresh. Its signature matches auth.Refresher.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": refreshToken}, "")
	if err != nil {
		return models.SessionTokens{}, err
	}

	var resp struct {
		Tokens models.SessionTokens `json:"tokens"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.SessionTokens{}, fmt.Errorf("decode refreshed session: %w", err)
	}
	if resp.Tokens.AccessToken == "" {
		return models.SessionTokens{}, ErrMissingAccessToken
	}
	return resp.Tokens, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, token string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func linkPath(companionID, coParentID string) string {
	return "/v1/parent-companion/companion/" + url.PathEscape(companionID) + "/" + url.PathEscape(coParentID)
}

// unwrapList extracts the array under key, or the body itself when it is an
// array. Anything else yields an empty, non-nil slice.
func unwrapList(body []byte, key string) []json.RawMessage {
	out := []json.RawMessage{}
	if !gjson.ValidBytes(body) {
		return out
	}

	result := gjson.ParseBytes(body)
	if result.IsObject() {
		result = result.Get(key)
	}
	if !result.IsArray() {
		return out
	}

	result.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, json.RawMessage(item.Raw))
		}
		return true
	})
	return out
}

func rawObject(body []byte) json.RawMessage {
	if !gjson.ValidBytes(body) {
		return json.RawMessage("{}")
	}
	result := gjson.ParseBytes(body)
	if !result.IsObject() {
		return json.RawMessage("{}")
	}
	return json.RawMessage(result.Raw)
}

func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, key := range []string{"error", "message"} {
		if msg := gjson.GetBytes(body, key); msg.Type == gjson.String && msg.Str != "" {
			return msg.Str
		}
	}
	return ""
}

var _ API = (*Client)(nil)
