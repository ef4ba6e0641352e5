package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const serverTokenTTL = 5 * time.Minute

// RESTClient talks to the vendor's HTTP control API. Calls live under
// /video/call/default/{callID}, chat channels under /channels/messaging/{callID},
// both keyed by the session's call id.
type RESTClient struct {
	baseURL    string
	apiKey     string
	tokens     *Tokens
	httpClient *http.Client
}

// NewRESTClient builds a client for the vendor API. timeout bounds each
// individual request; the coordinator adds its own per-operation deadline on
// top via context.
func NewRESTClient(baseURL, apiKey, apiSecret string, timeout time.Duration) (*RESTClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("provider base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse provider base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, errors.New("provider api key and secret are required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		tokens:     NewTokens(apiSecret),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *RESTClient) CreateCall(ctx context.Context, callID string, meta CallMetadata, creatorID string) error {
	body := map[string]any{
		"data": map[string]any{
			"created_by_id": creatorID,
			"custom":        meta,
		},
	}
	return c.do(ctx, http.MethodPost, "/video/call/default/"+url.PathEscape(callID), body)
}

func (c *RESTClient) DeleteCall(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodDelete, "/video/call/default/"+url.PathEscape(callID)+"?hard=true", nil)
}

func (c *RESTClient) CreateChannel(ctx context.Context, callID, name string, members []string) error {
	body := map[string]any{
		"name":    name,
		"members": members,
	}
	if len(members) > 0 {
		body["created_by_id"] = members[0]
	}
	return c.do(ctx, http.MethodPost, "/channels/messaging/"+url.PathEscape(callID), body)
}

func (c *RESTClient) AddChannelMember(ctx context.Context, callID, memberID string) error {
	body := map[string]any{
		"add_members": []string{memberID},
	}
	return c.do(ctx, http.MethodPost, "/channels/messaging/"+url.PathEscape(callID)+"/members", body)
}

func (c *RESTClient) DeleteChannel(ctx context.Context, callID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/messaging/"+url.PathEscape(callID), nil)
}

func (c *RESTClient) UpsertUser(ctx context.Context, profile UserProfile) error {
	body := map[string]any{
		"users": map[string]UserProfile{profile.ID: profile},
	}
	return c.do(ctx, http.MethodPost, "/users", body)
}

func (c *RESTClient) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(userID), nil)
}

// UserToken mints a client-side token for the given external identity, signed
// with the vendor secret.
func (c *RESTClient) UserToken(userID string) (string, error) {
	return c.tokens.UserToken(userID, time.Now(), 0)
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrRejected, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	serverToken, err := c.tokens.ServerToken(time.Now(), serverTokenTTL)
	if err != nil {
		return fmt.Errorf("%w: sign server token: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", serverToken)
	req.Header.Set("Stream-Auth-Type", "jwt")
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}

	snippet := readBodySnippet(res.Body)
	if retryableStatus(res.StatusCode) {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrUnavailable, method, path, res.StatusCode, snippet)
	}
	return fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path, res.StatusCode, snippet)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func readBodySnippet(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(raw) == 0 {
		return "<no body>"
	}
	return strings.TrimSpace(string(raw))
}
