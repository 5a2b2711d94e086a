// Package screenconnect is a thin client for the migration extension exposed
// by a ScreenConnect instance at App_Extensions/{guid}/Service.ashx. All
// operations are JSON-in/JSON-out over HTTPS, authenticated with a static
// secret header plus an Origin header matching the instance base URL.
package screenconnect

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

// NumCustomProperties is the number of free-form string slots a session
// carries. Slot index 7 ("CustomProperty8") is reserved for migration status.
const (
	NumCustomProperties = 8
	StatusSlot          = 7
)

const secretHeader = "X-Ctrl-Secret"

var ErrSessionNotFound = errors.New("session not found")

// Session is the platform's session record as returned by the extension.
// SessionID is opaque and per-instance; it is not stable across instances.
type Session struct {
	SessionID             string   `json:"SessionID"`
	Name                  string   `json:"Name"`
	GuestNetworkAddress   string   `json:"GuestNetworkAddress"`
	GuestClientVersion    string   `json:"GuestClientVersion"`
	GuestLastActivityTime string   `json:"GuestLastActivityTime"`
	GuestConnectedCount   int      `json:"GuestConnectedCount"`
	CustomPropertyValues  []string `json:"CustomPropertyValues"`
}

// Online reports whether the session currently has a connected guest.
func (s *Session) Online() bool {
	return s.GuestConnectedCount > 0
}

// CustomProperty returns slot i (0-based), tolerating short arrays from the
// upstream API.
func (s *Session) CustomProperty(i int) string {
	if i < 0 || i >= len(s.CustomPropertyValues) {
		return ""
	}
	return s.CustomPropertyValues[i]
}

type Client struct {
	baseURL    string
	extGUID    string
	ctrlSecret string
	httpClient *http.Client
}

func NewClient(baseURL, extGUID, ctrlSecret string) *Client {
	return &Client{
		baseURL:    baseURL,
		extGUID:    extGUID,
		ctrlSecret: ctrlSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetHTTPClient replaces the transport, mainly for tests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// BaseURL returns the instance base URL the client was built for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) serviceURL(op string) string {
	return fmt.Sprintf("%s/App_Extensions/%s/Service.ashx/%s", c.baseURL, c.extGUID, op)
}

// call posts args as a JSON array to the named extension operation and
// decodes the response into out (which may be nil for void operations).
func (c *Client) call(ctx context.Context, op string, args []interface{}, out interface{}) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL(op), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set(secretHeader, c.ctrlSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// GetSession fetches one session's details by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess *Session
	if err := c.call(ctx, "GetSessionDetails", []interface{}{sessionID}, &sess); err != nil {
		return nil, err
	}
	if sess == nil || sess.SessionID == "" {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// GetSessions lists sessions matching a filter expression, e.g.
// "SessionType = 'Access'".
func (c *Client) GetSessions(ctx context.Context, filter string) ([]Session, error) {
	var sessions []Session
	if err := c.call(ctx, "GetSessions", []interface{}{filter}, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateCustomProperties writes the full custom property array for a session.
// The extension replaces the whole array, so callers must read-modify-write.
func (c *Client) UpdateCustomProperties(ctx context.Context, sessionID string, props []string) error {
	return c.call(ctx, "UpdateCustomProperties", []interface{}{sessionID, props}, nil)
}

// RunCommand dispatches a remote command to the session's guest. The command
// body follows the platform's script conventions (#!ps, #timeout headers).
func (c *Client) RunCommand(ctx context.Context, sessionID, command string) error {
	return c.call(ctx, "RunCommand", []interface{}{sessionID, command}, nil)
}

// SetStatusProperty performs the read-modify-write of the status slot: fetch
// the current array, overwrite slot 8, write the array back. There is no
// optimistic-concurrency guard upstream; two concurrent writers race and the
// last write wins.
func (c *Client) SetStatusProperty(ctx context.Context, sessionID, status string) error {
	sess, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to read session before status update: %w", err)
	}

	props := make([]string, NumCustomProperties)
	copy(props, sess.CustomPropertyValues)
	props[StatusSlot] = status

	if err := c.UpdateCustomProperties(ctx, sessionID, props); err != nil {
		return fmt.Errorf("failed to write status property: %w", err)
	}
	return nil
}
