package library

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client issues requests against the LibreShelf API. Protected calls read the
// bearer token from the session store on every request.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	store      SessionStore
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a client bound to store.
func NewClient(store SessionStore, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		timeout:   15 * time.Second,
		store:     store,
		userAgent: "libreshelf-cli",
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Store returns the session store the client reads tokens from.
func (c *Client) Store() SessionStore { return c.store }

// Request performs a protected call and returns the raw JSON result. It fails
// with ErrUnauthenticated, without touching the network, when no token is
// stored. A 204 response yields "{}".
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	return c.send(ctx, method, endpoint, body, true)
}

// PublicRequest performs an unauthenticated call and returns the raw JSON result.
func (c *Client) PublicRequest(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	return c.send(ctx, method, endpoint, body, false)
}

// do runs a request and decodes a non-empty result into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body any, protected bool, out any) error {
	raw, err := c.send(ctx, method, endpoint, body, protected)
	if err != nil {
		return err
	}
	return decodeResult(raw, out)
}

func decodeResult(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 || string(raw) == "{}" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

var emptyResult = json.RawMessage("{}")

func (c *Client) send(ctx context.Context, method, endpoint string, body any, protected bool) (json.RawMessage, error) {
	var token string
	if protected {
		token = c.store.Token()
		if token == "" {
			c.logger.Debug("protected call without token", "method", method, "endpoint", endpoint)
			return nil, ErrUnauthenticated
		}
	}

	var bodyReader io.Reader
	hasBody := body != nil && carriesBody(method)
	if hasBody {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.execute(req, endpoint)
}

// execute sends a prepared request and applies the shared status handling.
func (c *Client) execute(req *http.Request, endpoint string) (json.RawMessage, error) {
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("request failed to reach server",
			"method", req.Method,
			"endpoint", endpoint,
			"request_id", requestID,
			"error", err,
		)
		return nil, &NetworkError{Method: req.Method, Endpoint: endpoint, Cause: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("api request",
		"method", req.Method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
	)

	if resp.StatusCode == http.StatusNoContent {
		return emptyResult, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, Endpoint: endpoint, Cause: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rf := newRequestFailed(req.Method, endpoint, resp.StatusCode, respBody)
		c.logger.Warn("api error",
			"method", req.Method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"detail", rf.DetailMessage(),
			"request_id", requestID,
		)
		return nil, rf
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return emptyResult, nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("%s %s: response is not valid JSON", req.Method, endpoint)
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) url(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return strings.TrimRight(c.baseURL, "/") + endpoint
}

// carriesBody reports whether method sends a JSON body. GET and DELETE never do.
func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		return true
	}
	return false
}

// IsNetworkError reports whether err means the server was never reached.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}
