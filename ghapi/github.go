// Package ghapi is the remote job-dispatch API client: it mints
// registration tokens and best-effort removes stale runner registrations.
// This is an external collaborator per spec.md §1 — the contract is
// narrow enough (two REST calls) that no GitHub SDK from the example pack
// fit better than the standard library's net/http.
package ghapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	apiBase          = "https://api.github.com"
	apiVersionHeader = "2022-11-28"
	userAgent        = "actions-runner"
)

// Client talks to a GitHub organization's Actions runner registration
// endpoints.
type Client struct {
	Org        string
	PAT        string
	HTTPClient *http.Client
	BaseURL    string
}

// New returns a Client for org, authenticating with pat.
func New(org, pat string) *Client {
	return &Client{
		Org:        org,
		PAT:        pat,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		BaseURL:    apiBase,
	}
}

type registrationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ghapi: marshalling request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.PAT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// RegistrationToken mints a fresh, short-lived runner registration token.
// It must be called at boot-arg assembly time, not at supervisor startup,
// because registration tokens expire (spec.md §3).
func (c *Client) RegistrationToken(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/actions/runners/registration-token", c.Org), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ghapi: registration-token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("ghapi: registration-token: unexpected status %s", resp.Status)
	}
	var out registrationTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ghapi: decoding registration-token response: %w", err)
	}
	return out.Token, nil
}

// RemoveToken best-effort deregisters runnerName from the org so it does
// not linger as a registered-but-dead entry. Errors are returned to the
// caller, who is expected to log and swallow them (spec.md §4.4.3,
// SPEC_FULL.md §5 supplemented feature).
func (c *Client) RemoveToken(ctx context.Context, runnerName string) error {
	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/orgs/%s/actions/runners/remove-token", c.Org),
		map[string]string{"runner_name": runnerName})
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ghapi: remove-token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ghapi: remove-token: unexpected status %s", resp.Status)
	}
	return nil
}
