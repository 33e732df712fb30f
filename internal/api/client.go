package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rickgao/engine-bridge/internal/auth"
)

// DefaultTimeout bounds every REST call.
const DefaultTimeout = 30 * time.Second

// Client provides access to the engine REST API.
type Client struct {
	baseURL    string
	creds      *auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter

	// Retries apply to GET requests only; zero disables them.
	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client. creds may be nil.
func NewClient(baseURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:       slog.Default(),
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("component", "api")
	return c
}

// BaseURL returns the engine REST base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries enables retries of idempotent GET requests on 5xx and 429.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithRateLimit caps outgoing requests at rps with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc == nil {
			return
		}
		// Later options (WithTimeout) must not mutate the caller's client.
		cp := *hc
		c.httpClient = &cp
	}
}
