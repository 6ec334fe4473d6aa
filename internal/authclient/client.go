// Package authclient talks to the platform's internal auth service for
// the two collaborators the Google path needs: access tokens for
// connected users and organization admin checks.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

var (
	_ calsync.TokenProvider = (*Client)(nil)
	_ calsync.RoleChecker   = (*Client)(nil)
)

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// AccessToken returns a currently valid Google access token for the
// user; the auth service refreshes it on demand.
func (c *Client) AccessToken(ctx context.Context, userID string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	path := fmt.Sprintf("/v1/users/%s/google-token", url.PathEscape(userID))
	if err := c.get(ctx, path, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("auth service returned no access token for user %s", userID)
	}

	return resp.AccessToken, nil
}

// IsActiveAdmin reports whether the user currently holds active admin
// status in the organization.
func (c *Client) IsActiveAdmin(ctx context.Context, userID, orgID string) (bool, error) {
	var resp struct {
		Active bool `json:"active"`
	}
	path := fmt.Sprintf("/v1/orgs/%s/admins/%s", url.PathEscape(orgID), url.PathEscape(userID))
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}

	return resp.Active, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error calling auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth service returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding auth service response: %w", err)
	}

	return nil
}
