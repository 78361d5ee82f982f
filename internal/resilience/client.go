package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without calling the dependency while the breaker
// is open or half-open and saturated.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ServerError is a 5xx response. It counts as a breaker failure and is retried.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientConfig holds configuration for a resilient client.
type ClientConfig struct {
	// Name identifies the dependency (required).
	Name string

	// Timeout bounds a single attempt (default: 10 seconds).
	Timeout time.Duration

	// MaxRetries after the first attempt. Zero disables retries.
	MaxRetries uint64

	// InitialInterval is the first backoff delay (default: 100ms).
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay (default: 2 seconds).
	MaxInterval time.Duration

	// Breaker configures the circuit breaker. Name defaults to the client name.
	Breaker BreakerConfig

	// Registry records successes and failures. Optional.
	Registry *Registry
}

// DefaultClientConfig returns the settings used for the model API.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Client is an HTTP client guarded by a circuit breaker with retries.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	cfg        ClientConfig
	registry   *Registry
}

// NewClient creates a resilient client and registers it when a Registry is set.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.Name
	}

	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker[*http.Response](cfg.Breaker), //nolint:bodyclose // type param, not response
		cfg:        cfg,
		registry:   cfg.Registry,
	}
	if c.registry != nil {
		c.registry.Register(c)
	}
	return c
}

// Name returns the dependency name.
func (c *Client) Name() string {
	return c.name
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req, retrying network errors and 5xx responses with exponential
// backoff. Requests with a body must be rewindable (GetBody set), which
// http.NewRequest does for bytes and strings readers. 4xx responses are
// returned to the caller as-is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	attempt := func() error {
		if last != nil {
			_ = last.Body.Close()
			last = nil
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			attemptReq := req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, backoff.Permanent(err)
				}
				attemptReq.Body = body
			}

			r, err := c.httpClient.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			last = resp
			return err
		}
		last = resp
		return nil
	}

	err := backoff.Retry(attempt, policy)
	if err != nil {
		if last != nil {
			_ = last.Body.Close()
		}
		c.record(err)
		return nil, err
	}

	c.record(nil)
	return last, nil
}

// DoJSON sends req and returns the body of a 2xx response. Non-2xx responses
// become a *StatusError carrying a bounded excerpt of the body.
func (c *Client) DoJSON(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := body
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(excerpt)}
	}
	return body, nil
}

// StatusError is a non-2xx response that was not retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(c.name, err)
		return
	}
	c.registry.RecordSuccess(c.name)
}

// WithTimeout derives a context bounded by d unless ctx already ends sooner.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < d {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
