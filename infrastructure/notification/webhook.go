// Package notification delivers approval requests to external reviewers over
// signed webhooks.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/specflow/domain/approval"
	"github.com/felixgeelhaar/specflow/infrastructure/logging"
)

// EventApprovalRequested is the envelope type of approval deliveries.
const EventApprovalRequested = "approval.requested"

var (
	// ErrInvalidEndpoint indicates the webhook URL is missing.
	ErrInvalidEndpoint = errors.New("invalid webhook endpoint")

	// ErrEndpointRejected indicates a 4xx response. It is not retried.
	ErrEndpointRejected = errors.New("webhook endpoint rejected request")

	// ErrEndpointUnavailable indicates a transport failure or 5xx response.
	ErrEndpointUnavailable = errors.New("webhook endpoint unavailable")
)

// Envelope is the JSON body posted to the webhook.
type Envelope struct {
	ID        string           `json:"id"`
	Type      string           `json:"type"`
	CreatedAt time.Time        `json:"createdAt"`
	Request   approval.Request `json:"request"`
}

// WebhookConfig configures the webhook requester.
type WebhookConfig struct {
	// URL is the endpoint receiving approval requests.
	URL string
	// Secret enables HMAC signing when set.
	Secret string
	// Headers are added to every request.
	Headers map[string]string
	// Timeout is the HTTP request timeout.
	Timeout time.Duration
	// MaxRetries is the maximum number of attempts.
	MaxRetries int
	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration
	// CircuitBreakerThreshold is failures before opening circuit.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long circuit stays open.
	CircuitBreakerTimeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
}

// DefaultWebhookConfig returns sensible default configuration.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:                 30 * time.Second,
		MaxRetries:              3,
		RetryDelay:              time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		UserAgent:               "specflow-webhook/1.0",
	}
}

// WebhookRequester implements approval.Requester by POSTing an Envelope.
type WebhookRequester struct {
	config   WebhookConfig
	client   *http.Client
	signer   *Signer
	breakers map[string]circuitbreaker.CircuitBreaker[*http.Response]
	retrier  retry.Retry[*http.Response]
	now      func() time.Time
	mu       sync.RWMutex
}

// NewWebhookRequester creates a webhook requester. Zero config values take
// defaults.
func NewWebhookRequester(config WebhookConfig) *WebhookRequester {
	defaults := DefaultWebhookConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = defaults.CircuitBreakerThreshold
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = defaults.CircuitBreakerTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	var signer *Signer
	if config.Secret != "" {
		signer = NewSigner(config.Secret)
	}

	return &WebhookRequester{
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		signer:   signer,
		breakers: make(map[string]circuitbreaker.CircuitBreaker[*http.Response]),
		retrier: retry.New[*http.Response](retry.Config{
			MaxAttempts:   config.MaxRetries,
			InitialDelay:  config.RetryDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			// Only server errors (5xx) and transport failures are retried
			NonRetryableErrors: []error{ErrEndpointRejected},
		}),
		now: time.Now,
	}
}

// RequestApproval implements approval.Requester.
func (w *WebhookRequester) RequestApproval(ctx context.Context, req approval.Request) error {
	if w.config.URL == "" {
		return ErrInvalidEndpoint
	}
	if err := req.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(Envelope{
		ID:        uuid.New().String(),
		Type:      EventApprovalRequested,
		CreatedAt: w.now().UTC(),
		Request:   req,
	})
	if err != nil {
		return fmt.Errorf("failed to serialize approval request: %w", err)
	}

	breaker := w.getBreaker(w.config.URL)
	_, err = breaker.Execute(ctx, func(ctx context.Context) (*http.Response, error) {
		return w.retrier.Do(ctx, func(ctx context.Context) (*http.Response, error) {
			return w.post(ctx, payload)
		})
	})
	if err != nil {
		logging.Warn().
			Add(logging.Component("webhook")).
			Add(logging.SuggestionID(req.ToolCallID)).
			Add(logging.Str("breaker", breaker.State().String())).
			Add(logging.ErrorField(err)).
			Msg("approval request delivery failed")
		return fmt.Errorf("%w: %w", approval.ErrDeliveryFailed, err)
	}
	return nil
}

// post sends one attempt. The request is rebuilt per attempt so the body
// reader and the signature timestamp are fresh.
func (w *WebhookRequester) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointRejected, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", w.config.UserAgent)
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}
	if w.signer != nil {
		w.signer.Apply(req.Header, payload, w.now())
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrEndpointUnavailable, resp.StatusCode, body)
	default:
		return nil, fmt.Errorf("%w: status %d: %s", ErrEndpointRejected, resp.StatusCode, body)
	}
}

// getBreaker returns the circuit breaker for an endpoint, creating one if needed.
func (w *WebhookRequester) getBreaker(url string) circuitbreaker.CircuitBreaker[*http.Response] {
	w.mu.RLock()
	breaker, exists := w.breakers[url]
	w.mu.RUnlock()

	if exists {
		return breaker
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if breaker, exists = w.breakers[url]; exists {
		return breaker
	}

	threshold := w.config.CircuitBreakerThreshold
	breaker = circuitbreaker.New[*http.Response](circuitbreaker.Config{
		MaxRequests: 10,
		Interval:    w.config.CircuitBreakerTimeout,
		Timeout:     w.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is validated
		},
	})
	w.breakers[url] = breaker

	return breaker
}

// BreakerState returns the circuit breaker state for the endpoint.
func (w *WebhookRequester) BreakerState() string {
	w.mu.RLock()
	breaker, exists := w.breakers[w.config.URL]
	w.mu.RUnlock()

	if !exists {
		return "unknown"
	}
	return breaker.State().String()
}

var _ approval.Requester = (*WebhookRequester)(nil)
