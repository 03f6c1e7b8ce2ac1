package zuva

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultRegion is used when no region or base URL is configured.
	DefaultRegion = RegionUS

	// DefaultTimeout bounds a single HTTP exchange; stage budgets are applied by callers.
	DefaultTimeout = 2 * time.Minute

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5

	// DefaultCatalogueTTL is how long a fetched field catalogue is served from cache.
	DefaultCatalogueTTL = time.Hour

	// DefaultMaxWait and DefaultPollInterval are the WaitForCompletion defaults.
	DefaultMaxWait      = 180 * time.Second
	DefaultPollInterval = 3 * time.Second

	// MaxIDsPerRequest caps file_ids and field_ids in one submission.
	MaxIDsPerRequest = 100

	maxResponseBytes = 64 << 20
)

// Client is a Zuva API client.
type Client struct {
	baseURL     string
	region      Region
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	logger      arbor.ILogger
	limiter     *rate.Limiter
	retry       *RetryPolicy
	catalogue   *catalogueCache
	now         func() time.Time
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithRegion selects the us or eu deployment.
func WithRegion(region Region) ClientOption {
	return func(c *Client) {
		c.region = region
	}
}

// WithBaseURL sets a custom base URL, taking precedence over the region.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(policy *RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithCatalogueTTL sets how long the field catalogue is cached.
func WithCatalogueTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.catalogue.ttl = ttl
	}
}

// WithTokenSource authenticates with tokens from ts instead of a static API token.
func WithTokenSource(ts oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

func withClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Zuva API client.
func NewClient(apiToken string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		region: DefaultRegion,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		retry:     NewRetryPolicy(),
		catalogue: &catalogueCache{ttl: DefaultCatalogueTTL},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		baseURL, err := c.region.BaseURL()
		if err != nil {
			return nil, err
		}
		c.baseURL = baseURL
	}

	if c.tokenSource == nil {
		if apiToken == "" {
			return nil, ErrMissingToken
		}
		c.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: apiToken,
			TokenType:   "Bearer",
		})
	}

	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}

	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Opener returns a fresh reader over a document and its size (-1 when unknown).
// It is called once per upload attempt.
type Opener func(ctx context.Context) (io.ReadCloser, int64, error)

type request struct {
	op          string
	method      string
	path        string
	contentType string
	body        Opener
}

type response struct {
	status int
	body   []byte
}

// call performs r under the retry policy
func (c *Client) call(ctx context.Context, r request) (*response, error) {
	var resp *response
	err := c.retry.ExecuteWithRetry(ctx, c.logger, r.op, func(ctx context.Context) error {
		var err error
		resp, err = c.send(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// send performs one HTTP exchange
func (c *Client) send(ctx context.Context, r request) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("zuva %s: rate limiter: %w", r.op, err)
	}

	var (
		body   io.ReadCloser
		length int64 = -1
	)
	if r.body != nil {
		var err error
		body, length, err = r.body(ctx)
		if err != nil {
			return nil, fmt.Errorf("zuva %s: failed to open request body: %w", r.op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil && length >= 0 {
		req.ContentLength = length
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.tokenSource.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &AuthenticationError{Op: r.op, Message: err.Error()}
		}
		return nil, &TransientNetworkError{Op: r.op, Err: err}
	}
	token.SetAuthHeader(req)

	c.logger.Debug().
		Str("op", r.op).
		Str("method", r.method).
		Str("url", c.baseURL+r.path).
		Msg("Zuva API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientNetworkError{Op: r.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientNetworkError{Op: r.op, Err: err}
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// checkAuth maps a 401 onto AuthenticationError
func checkAuth(op string, resp *response) error {
	if resp.status == http.StatusUnauthorized {
		return &AuthenticationError{Op: op, Message: "invalid API token"}
	}
	return nil
}

func apiError(op, endpoint string, resp *response) *APIError {
	return &APIError{
		Op:         op,
		StatusCode: resp.status,
		Message:    strings.TrimSpace(string(resp.body)),
		Endpoint:   endpoint,
	}
}

// Upload sends the document to the provider and returns its file id.
func (c *Client) Upload(ctx context.Context, name string, open Opener) (string, error) {
	const op = "upload"

	resp, err := c.call(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/files",
		contentType: "application/octet-stream",
		body:        open,
	})
	if err != nil {
		return "", err
	}
	if err := checkAuth(op, resp); err != nil {
		return "", err
	}
	if resp.status != http.StatusCreated {
		return "", apiError(op, "/files", resp)
	}

	var result uploadResponse
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.FileID == "" {
		return "", &APIError{Op: op, StatusCode: resp.status, Message: "response did not include file_id", Endpoint: "/files"}
	}

	c.logger.Info().
		Str("file", name).
		Str("file_id", result.FileID).
		Msg("Document uploaded to Zuva")

	return result.FileID, nil
}

// UploadFile uploads a local file.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	return c.Upload(ctx, filepath.Base(path), FileOpener(path))
}

// FileOpener opens path on every attempt.
func FileOpener(path string) Opener {
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, info.Size(), nil
	}
}

// BytesOpener serves an in-memory document.
func BytesOpener(data []byte) Opener {
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}
}

// Submit requests extraction of fieldIDs from fileIDs and returns the request id
// of the first file.
func (c *Client) Submit(ctx context.Context, fileIDs, fieldIDs []string) (string, error) {
	const op = "submit"

	if err := validateSubmission(fileIDs, fieldIDs); err != nil {
		return "", err
	}

	payload, err := json.Marshal(submitRequest{FileIDs: fileIDs, FieldIDs: fieldIDs})
	if err != nil {
		return "", fmt.Errorf("failed to encode extraction request: %w", err)
	}

	resp, err := c.call(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        "/extraction",
		contentType: "application/json",
		body:        BytesOpener(payload),
	})
	if err != nil {
		return "", err
	}
	if err := checkAuth(op, resp); err != nil {
		return "", err
	}

	switch resp.status {
	case http.StatusAccepted:
	case http.StatusBadRequest:
		var envelope errorEnvelope
		if err := json.Unmarshal(resp.body, &envelope); err == nil && (envelope.Error.Code != "" || envelope.Error.Message != "") {
			return "", &ValidationError{Code: envelope.Error.Code, Message: envelope.Error.Message}
		}
		return "", &ValidationError{Message: strings.TrimSpace(string(resp.body))}
	case http.StatusNotFound:
		return "", &NotFoundError{
			Op:      op,
			Message: fmt.Sprintf("one or more of %d field ids are not recognised by the provider: %s", len(fieldIDs), strings.TrimSpace(string(resp.body))),
		}
	default:
		return "", apiError(op, "/extraction", resp)
	}

	var result submitResponse
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return "", fmt.Errorf("failed to decode extraction response: %w", err)
	}
	if len(result.FileIDs) == 0 || result.FileIDs[0].RequestID == "" {
		return "", &APIError{Op: op, StatusCode: resp.status, Message: "response did not include a request_id", Endpoint: "/extraction"}
	}

	requestID := result.FileIDs[0].RequestID
	c.logger.Info().
		Str("request_id", requestID).
		Int("files", len(fileIDs)).
		Int("fields", len(fieldIDs)).
		Msg("Extraction request submitted")

	return requestID, nil
}

func validateSubmission(fileIDs, fieldIDs []string) error {
	if len(fileIDs) < 1 || len(fileIDs) > MaxIDsPerRequest {
		return &ValidationError{Message: fmt.Sprintf("file_ids must contain between 1 and %d entries, got %d", MaxIDsPerRequest, len(fileIDs))}
	}
	if len(fieldIDs) < 1 || len(fieldIDs) > MaxIDsPerRequest {
		return &ValidationError{Message: fmt.Sprintf("field_ids must contain between 1 and %d entries, got %d", MaxIDsPerRequest, len(fieldIDs))}
	}

	var invalid []string
	for _, id := range fieldIDs {
		if !IsFieldID(id) {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Message: "invalid field id format: " + SummarizeIDs(invalid, 5)}
	}
	return nil
}

// PollStatus reads the request status once.
func (c *Client) PollStatus(ctx context.Context, requestID string) (*StatusResponse, error) {
	const op = "status"
	path := "/extraction/" + requestID

	resp, err := c.call(ctx, request{op: op, method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	if err := checkAuth(op, resp); err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, &NotFoundError{Op: op, Message: "unknown extraction request " + requestID}
	}
	if resp.status != http.StatusOK {
		return nil, apiError(op, path, resp)
	}

	var status StatusResponse
	if err := json.Unmarshal(resp.body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if status.RequestID == "" {
		status.RequestID = requestID
	}
	return &status, nil
}

// WaitForCompletion polls until the request completes, fails, or maxWait of wall-clock
// time has passed. Each poll runs under the same deadline, so a hung status call
// cannot outlast maxWait. Poll errors other than authentication and unknown request
// are logged and polling continues.
func (c *Client) WaitForCompletion(ctx context.Context, requestID string, maxWait, pollInterval time.Duration) (*StatusResponse, error) {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	c.logger.Debug().
		Str("request_id", requestID).
		Dur("max_wait", maxWait).
		Dur("poll_interval", pollInterval).
		Msg("Waiting for extraction to complete")

	start := c.now()
	pollCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	timedOut := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return &PipelineTimeoutError{Stage: StagePoll, After: maxWait}
	}

	for {
		status, err := c.PollStatus(pollCtx, requestID)
		elapsed := c.now().Sub(start)
		switch {
		case err == nil:
			switch status.Status {
			case StatusComplete:
				c.logger.Info().
					Str("request_id", requestID).
					Dur("elapsed", elapsed).
					Msg("Extraction complete")
				return status, nil
			case StatusFailed:
				message := status.Message
				if message == "" {
					message = "extraction failed"
				}
				return nil, &ProviderFailureError{RequestID: requestID, Message: message}
			}
			c.logger.Debug().
				Str("request_id", requestID).
				Str("status", string(status.Status)).
				Dur("elapsed", elapsed).
				Msg("Extraction still running")
		case pollCtx.Err() != nil:
			return nil, timedOut()
		case isFatalPollError(err):
			return nil, err
		default:
			c.logger.Warn().
				Err(err).
				Str("request_id", requestID).
				Dur("elapsed", elapsed).
				Msg("Status poll failed, continuing")
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return nil, timedOut()
		case <-timer.C:
		}
	}
}

func isFatalPollError(err error) bool {
	var (
		authErr *AuthenticationError
		nfErr   *NotFoundError
	)
	return errors.As(err, &authErr) || errors.As(err, &nfErr)
}

// FetchResults returns the raw text results payload of a completed request.
func (c *Client) FetchResults(ctx context.Context, requestID string) (json.RawMessage, error) {
	const op = "results"
	path := "/extraction/" + requestID + "/results/text"

	resp, err := c.call(ctx, request{op: op, method: http.MethodGet, path: path})
	if err != nil {
		return nil, err
	}
	if err := checkAuth(op, resp); err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, &NotFoundError{Op: op, Message: "no results for extraction request " + requestID}
	}
	if resp.status != http.StatusOK {
		return nil, apiError(op, path, resp)
	}
	if !json.Valid(resp.body) {
		return nil, fmt.Errorf("zuva %s: response is not valid JSON", op)
	}

	return json.RawMessage(resp.body), nil
}
