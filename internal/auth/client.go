// Package auth talks to the CrystalStudio account service.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crystalsetup/internal/logging"
)

// Template placeholders replaced with the user's credentials.
const (
	PlaceholderUsername = "%username%"
	PlaceholderPassword = "%password%"
)

// StateSuccess is the only state that yields a token.
const StateSuccess = "success"

// StateError carries a human readable reason.
const StateError = "error"

// Response is the JSON body returned by the check, register and login endpoints.
type Response struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Mode selects between creating an account and logging in.
type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
)

func (m Mode) String() string {
	if m == ModeRegister {
		return "register"
	}
	return "login"
}

// Error is returned when the service answered but refused the credentials.
type Error struct {
	Mode   Mode
	State  string
	Reason string
}

func (e *Error) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown error"
	}
	if e.Mode == ModeRegister {
		return "Could not create account due to an error: " + reason
	}
	return "Could not login due to an error: " + reason
}

// ExpandTemplate substitutes the credentials into tmpl. Without escape the
// values are inserted verbatim.
func ExpandTemplate(tmpl, username, password string, escape bool) string {
	if escape {
		username = url.QueryEscape(username)
		password = url.QueryEscape(password)
	}
	out := strings.ReplaceAll(tmpl, PlaceholderUsername, username)
	return strings.ReplaceAll(out, PlaceholderPassword, password)
}

// Client performs account requests.
type Client struct {
	HTTPClient *http.Client
	Escape     bool
}

// NewClient creates a client whose requests are bounded by timeout.
func NewClient(timeout time.Duration, escape bool) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		Escape:     escape,
	}
}

// Query expands tmpl, performs the GET and decodes the response. Only
// transport and decoding problems are returned as errors.
func (c *Client) Query(ctx context.Context, tmpl, username, password string) (*Response, error) {
	target := ExpandTemplate(tmpl, username, password, c.Escape)

	var resp Response
	if err := c.getJSON(ctx, target, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Authenticate registers or logs in and returns the issued token. A
// non-success state is reported as *Error.
func (c *Client) Authenticate(ctx context.Context, mode Mode, tmpl, username, password string) (string, error) {
	resp, err := c.Query(ctx, tmpl, username, password)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", mode, err)
	}

	if resp.State != StateSuccess {
		logging.Warning("account %s refused: state=%q reason=%q", mode, resp.State, resp.Reason)
		return "", &Error{Mode: mode, State: resp.State, Reason: resp.Reason}
	}
	if resp.Token == "" {
		return "", &Error{Mode: mode, State: resp.State, Reason: "the server did not issue a token"}
	}

	return resp.Token, nil
}

// LookupUsername resolves the canonical spelling of name. The name is
// appended to baseURL as is unless the client escapes credentials.
func (c *Client) LookupUsername(ctx context.Context, baseURL, name string) (string, error) {
	var body struct {
		Data struct {
			Username string `json:"username"`
		} `json:"data"`
	}
	if c.Escape {
		name = url.PathEscape(name)
	}
	if err := c.getJSON(ctx, baseURL+name, &body); err != nil {
		return "", fmt.Errorf("username lookup failed: %w", err)
	}
	if body.Data.Username == "" {
		return "", fmt.Errorf("username lookup for %q returned no username", name)
	}
	return body.Data.Username, nil
}

func (c *Client) getJSON(ctx context.Context, target string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "CrystalStudio-Setup")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
