package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout leaves room for start sequences with long delays.
	DefaultTimeout = 2 * time.Minute
)

// Client talks to an emuctl daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
	// CACert pins the daemon's certificate, e.g. the generated tls_ca.crt.
	CACert   string
	Insecure bool // Skip TLS verification
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}
}

// New creates a client. It fails only when the CA certificate cannot be
// loaded.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.CACert != "" || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}, nil
}

// Info fetches the daemon's self-description.
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	var out InfoResponse
	if err := c.do(ctx, http.MethodGet, "/", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Start runs the start sequence of one server, or of every enabled server
// when id is empty or "all".
func (c *Client) Start(ctx context.Context, id string) (*SequenceResponse, error) {
	return c.sequence(ctx, "start", id)
}

// Stop runs the stop sequence of one server, or of every enabled server
// when id is empty or "all".
func (c *Client) Stop(ctx context.Context, id string) (*SequenceResponse, error) {
	return c.sequence(ctx, "stop", id)
}

// Status reports one server, or every server when id is empty.
func (c *Client) Status(ctx context.Context, id string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, path("status", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) sequence(ctx context.Context, op, id string) (*SequenceResponse, error) {
	c.logger.Debug("Requesting sequence", "operation", op, "server", id)
	var out SequenceResponse
	if err := c.do(ctx, http.MethodPost, path(op, id), &out); err != nil {
		return nil, err
	}
	c.logger.Debug("Sequence completed", "operation", op, "results", len(out.Results))
	return &out, nil
}

func path(op, id string) string {
	if id == "" {
		return "/" + op
	}
	return "/" + op + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, p string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "url", req.URL.String(), "error", err)
		return fmt.Errorf("request %s %s: %w", method, p, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		apiErr.Message = er.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	c.logger.Debug("API request failed", "error", apiErr.Message, "status", resp.StatusCode)
	return apiErr
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		// #nosec G402 -- explicit operator opt-in
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	caCert, err := os.ReadFile(config.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
