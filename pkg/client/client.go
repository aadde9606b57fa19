// Package client provides the dog API HTTP client. It performs exactly one
// attempt per call and classifies every failure; caching lives in the
// images package.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream client operations.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dogproxy_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dogproxy_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dogproxy_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

const (
	// StatusSuccess is the body-level status of a successful dog API response.
	StatusSuccess = "success"

	maxBodyBytes = 1 << 20
)

// Upstream endpoint paths, relative to BaseURL.
const (
	EndpointRandomImage = "breeds/image/random"
	EndpointBreedList   = "breeds/list/all"
)

// BreedImageEndpoint returns the path of a random image for breed, which
// must already be normalized ("hound/afghan" for a sub-breed).
func BreedImageEndpoint(breed string) string {
	return "breed/" + breed + "/images/random"
}

// Client is the dog API client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the dog API, without trailing slash
	BaseURL string

	// Timeout bounds every call, connection and body read included
	Timeout time.Duration

	// UserAgent header sent upstream
	UserAgent string
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "https://dog.ceo/api",
		Timeout:   10 * time.Second,
		UserAgent: "dog-photo-cache/0.1.0",
	}
}

// New creates a new dog API client.
func New(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive (got %s)", ErrInvalidConfig, cfg.Timeout)
	}

	logger := log.With().Str("component", "upstream-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// envelope is the shape shared by every dog API response.
type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Code    int             `json:"code,omitempty"`
}

// Fetch performs a single GET against endpoint and returns the raw JSON
// body. Any transport failure, non-2xx status, undecodable body or
// body-level status other than "success" yields an *UpstreamError.
func (c *Client) Fetch(ctx context.Context, endpoint string) (json.RawMessage, error) {
	endpoint = strings.TrimLeft(endpoint, "/")
	label := endpointLabel(endpoint)

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/"+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().Str("endpoint", endpoint).Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(label, "network_error").Inc()
		msg := "request failed"
		if IsTimeout(err) {
			msg = "request timed out"
		}
		return nil, c.fail(&UpstreamError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    msg,
			Err:        err,
		})
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(&UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(&UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    bodyMessage(body, resp.Status),
		})
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, c.fail(&UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassInvalidPayload,
			Message:    "decode response body",
			Err:        err,
		})
	}

	if env.Status != StatusSuccess {
		return nil, c.fail(&UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNotFound,
			Message:    bodyMessage(body, "API returned non-success status"),
		})
	}

	return json.RawMessage(body), nil
}

// fail records and logs err before handing it back.
func (c *Client) fail(err *UpstreamError) error {
	upstreamErrorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()

	event := c.logger.Warn()
	if err.ErrorClass == ErrorClassNotFound {
		event = c.logger.Debug()
	}
	event.
		Str("endpoint", err.Endpoint).
		Int("status_code", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Err(err.Err).
		Msg(err.Message)

	return err
}

// classifyStatus categorizes a non-2xx HTTP status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status >= 400 && status < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

// bodyMessage extracts the "message" string of an error body, or fallback.
func bodyMessage(body []byte, fallback string) string {
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return fallback
}

// endpointLabel collapses breed paths so metric cardinality stays bounded.
func endpointLabel(endpoint string) string {
	if strings.HasPrefix(endpoint, "breed/") {
		return BreedImageEndpoint("{breed}")
	}
	return endpoint
}

// Close releases idle upstream connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	if client.Timeout == 0 {
		client.Timeout = c.config.Timeout
	}
	c.httpClient = client
}

// IsTimeout reports whether err came from the client timeout or a context deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeoutErr interface{ Timeout() bool }
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}
