package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// HTTPClient implements API against the HTTP/JSON surface.
type HTTPClient struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
}

// NewHTTPClient creates a client targeting the given base URL
// (e.g. "http://localhost:8080"). sessionID may be empty until Login.
func NewHTTPClient(baseURL, sessionID string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		httpClient: &http.Client{},
	}
}

// SetSession swaps the session id presented on subsequent requests.
func (c *HTTPClient) SetSession(sessionID string) {
	c.sessionID = sessionID
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// Login exchanges credentials for a session and adopts it for subsequent
// calls.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{"username": username, "password": password}
	var result LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/login", body, &result); err != nil {
		return nil, err
	}
	c.sessionID = result.SessionID
	return &result, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/v1/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) Bootstrap(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := c.doJSON(ctx, http.MethodGet, "/v1/bootstrap", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPClient) EventsSince(ctx context.Context, afterID int64) ([]*model.Event, int64, error) {
	var resp struct {
		Events     []*model.Event `json:"events"`
		LastSyncID int64          `json:"last_sync_id"`
	}
	path := "/v1/events?after=" + strconv.FormatInt(afterID, 10)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Events, resp.LastSyncID, nil
}

// DialSync opens the websocket live connection.
func (c *HTTPClient) DialSync(ctx context.Context, afterID int64) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/v1/ws"
	if afterID > 0 {
		wsURL += "?after=" + strconv.FormatInt(afterID, 10)
	}
	header := http.Header{}
	if c.sessionID != "" {
		header.Set("Authorization", "Session "+c.sessionID)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dialing sync connection: %w", err)
	}
	return conn, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionID != "" {
		req.Header.Set("Authorization", "Session "+c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
