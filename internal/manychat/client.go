// Package manychat talks to the ManyChat subscriber and flow APIs.
package manychat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	defaultBaseURL   = "https://api.manychat.com"
	defaultUserAgent = "clinic-concierge/0.1"
)

// Config controls how the ManyChat client behaves.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client wraps the ManyChat REST endpoints the concierge needs. Each call
// carries the API key of the account it acts on since two accounts share one
// client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger.Component("manychat"),
		userAgent:  userAgent,
	}
}

// SetCustomField writes value into the subscriber's custom field.
func (c *Client) SetCustomField(ctx context.Context, apiKey, subscriberID, fieldID string, value any) error {
	if strings.TrimSpace(subscriberID) == "" {
		return errors.New("manychat: subscriber id required")
	}
	if strings.TrimSpace(fieldID) == "" {
		return errors.New("manychat: field id required")
	}
	body, err := json.Marshal(struct {
		SubscriberID any `json:"subscriber_id"`
		FieldID      any `json:"field_id"`
		FieldValue   any `json:"field_value"`
	}{
		SubscriberID: numericID(subscriberID),
		FieldID:      numericID(fieldID),
		FieldValue:   value,
	})
	if err != nil {
		return fmt.Errorf("manychat: marshal set field body: %w", err)
	}
	_, err = c.invoke(ctx, apiKey, http.MethodPost, "/fb/subscriber/setCustomField", nil, body, retryAll)
	return err
}

// SendFlow triggers the flow identified by flowNS for the subscriber.
func (c *Client) SendFlow(ctx context.Context, apiKey, subscriberID, flowNS string) error {
	if strings.TrimSpace(subscriberID) == "" {
		return errors.New("manychat: subscriber id required")
	}
	if strings.TrimSpace(flowNS) == "" {
		return errors.New("manychat: flow namespace required")
	}
	body, err := json.Marshal(struct {
		SubscriberID any    `json:"subscriber_id"`
		FlowNS       string `json:"flow_ns"`
	}{
		SubscriberID: numericID(subscriberID),
		FlowNS:       flowNS,
	})
	if err != nil {
		return fmt.Errorf("manychat: marshal send flow body: %w", err)
	}
	// A timed-out sendFlow may already have reached the patient.
	_, err = c.invoke(ctx, apiKey, http.MethodPost, "/fb/sending/sendFlow", nil, body, retryThrottled)
	return err
}

// GetSubscriberInfo fetches the subscriber's profile.
func (c *Client) GetSubscriberInfo(ctx context.Context, apiKey, subscriberID string) (*Subscriber, error) {
	if strings.TrimSpace(subscriberID) == "" {
		return nil, errors.New("manychat: subscriber id required")
	}
	q := url.Values{}
	q.Set("subscriber_id", subscriberID)
	data, err := c.invoke(ctx, apiKey, http.MethodGet, "/fb/subscriber/getInfo", q, nil, retryAll)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Data Subscriber `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("manychat: decode subscriber: %w", err)
	}
	return &wrapper.Data, nil
}

// retryPolicy selects which failures a call may retry.
type retryPolicy int

const (
	// retryAll retries transport errors, 429 and 5xx. Only for idempotent calls.
	retryAll retryPolicy = iota
	// retryThrottled retries 429 only; the request was rejected before any side effect.
	retryThrottled
)

func (p retryPolicy) allows(status int, err error) bool {
	if p == retryThrottled {
		return err == nil && status == http.StatusTooManyRequests
	}
	return shouldRetry(status, err)
}

func (c *Client) invoke(ctx context.Context, apiKey, method, path string, query url.Values, body []byte, policy retryPolicy) ([]byte, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("manychat: api key required")
	}
	fullURL := c.buildURL(path, query)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("manychat: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !policy.allows(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("manychat: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("manychat: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := checkEnvelope(resp.StatusCode, data); err != nil {
				return nil, err
			}
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && policy.allows(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("manychat: request failed without response")
}

func (c *Client) buildURL(path string, query url.Values) string {
	full := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full = full + "?" + query.Encode()
	}
	return full
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt int, status int, err error) {
	c.logger.Warn("manychat retry",
		"path", path,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func shouldRetry(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return !errors.Is(err, context.Canceled)
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status <= 599
}

// numericID sends ids ManyChat stores as integers as JSON numbers.
func numericID(id string) any {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
