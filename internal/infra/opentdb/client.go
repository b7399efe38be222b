// Package opentdb fetches multiple-choice questions from the Open Trivia DB API.
package opentdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trivia-quiz-engine/internal/domain"
)

const (
	// DefaultBaseURL is the public Open Trivia DB endpoint.
	DefaultBaseURL = "https://opentdb.com"
	// DefaultMaxRetries is how many times a 429 response is retried.
	DefaultMaxRetries = 5
	// DefaultInitialBackoff is the wait before the first retry; it doubles each time.
	DefaultInitialBackoff = time.Second
)

// Client is an Open Trivia DB client. It satisfies app.QuestionSource.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry overrides the retry budget and the initial backoff.
func WithRetry(maxRetries int, initialBackoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
	}
}

// WithSleep replaces the backoff wait (tests record delays instead of sleeping).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		maxRetries:     DefaultMaxRetries,
		initialBackoff: DefaultInitialBackoff,
		sleep:          sleepContext,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	ResponseCode int                  `json:"response_code"`
	Results      []domain.RawQuestion `json:"results"`
}

// FetchQuestions issues one GET per attempt. 429 responses are retried with a
// doubling delay; any other non-2xx status fails immediately.
func (c *Client) FetchQuestions(ctx context.Context, categoryID int, difficulty domain.Difficulty, amount int) ([]domain.RawQuestion, error) {
	endpoint, err := c.questionsURL(categoryID, difficulty, amount)
	if err != nil {
		return nil, err
	}

	delay := c.initialBackoff
	for attempt := 0; ; attempt++ {
		status, body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt >= c.maxRetries {
				return nil, fmt.Errorf("opentdb: %w (%d retries)", domain.ErrRateLimitExhausted, attempt)
			}
			c.logger.Warn("opentdb rate limited, retrying", "attempt", attempt+1, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			continue
		}
		if status < 200 || status > 299 {
			return nil, &domain.HTTPError{StatusCode: status}
		}

		var resp apiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("opentdb: decode response: %w", err)
		}
		if resp.ResponseCode != 0 {
			return nil, fmt.Errorf("opentdb: response code %d: %w", resp.ResponseCode, domain.ErrNoQuestionsAvailable)
		}
		if len(resp.Results) == 0 {
			return nil, fmt.Errorf("opentdb: empty result list: %w", domain.ErrNoQuestionsAvailable)
		}
		c.logger.Info("opentdb questions fetched", "category", categoryID, "difficulty", difficulty, "count", len(resp.Results), "retries", attempt)
		return resp.Results, nil
	}
}

func (c *Client) questionsURL(categoryID int, difficulty domain.Difficulty, amount int) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("opentdb: parse base url: %w", err)
	}
	u, err := base.Parse("/api.php")
	if err != nil {
		return "", fmt.Errorf("opentdb: build url: %w", err)
	}
	q := u.Query()
	q.Set("amount", strconv.Itoa(amount))
	q.Set("category", strconv.Itoa(categoryID))
	q.Set("difficulty", string(difficulty))
	q.Set("type", "multiple")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("opentdb: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &domain.TransportError{Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, &domain.TransportError{Err: err}
	}
	return res.StatusCode, body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
