// Package profile talks to the profile/session service. Pulse never
// stores user identities itself; it only passes ids around and asks this
// client when a real profile is needed.
package profile

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resty.dev/v3"

	"github.com/pulseapp/pulse-backend/internal/pulse"
)

type Client struct {
	baseURL string
	client  *resty.Client
}

func NewClient(baseURL string) *Client {
	client := resty.NewWithTransportSettings(&resty.TransportSettings{
		DialerTimeout:         2 * time.Second,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   2 * time.Second,
		ResponseHeaderTimeout: 2 * time.Second,
	})
	return &Client{baseURL: baseURL, client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) r(ctx context.Context) *resty.Request {
	return c.client.R().WithContext(ctx)
}

// GetProfile fetches one user's public profile.
func (c *Client) GetProfile(ctx context.Context, userID string) (*pulse.Profile, error) {
	res, err := c.r(ctx).
		SetPathParam("id", userID).
		SetResult(&pulse.Profile{}).
		Get(c.baseURL + "/internal/users/{id}/profile")
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("profile service returned %s for user %s", res.Status(), userID)
	}
	return res.Result().(*pulse.Profile), nil
}

// Resolve maps a session token to the authenticated user id.
func (c *Client) Resolve(ctx context.Context, token string) (string, error) {
	type session struct {
		UserID string `json:"userId"`
	}
	res, err := c.r(ctx).
		SetAuthToken(token).
		SetResult(&session{}).
		Get(c.baseURL + "/internal/session")
	if err != nil {
		return "", err
	}
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("session service returned %s", res.Status())
	}
	return res.Result().(*session).UserID, nil
}
