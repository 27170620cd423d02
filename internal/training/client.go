package training

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is where the training service listens by default.
const DefaultBaseURL = "http://127.0.0.1:8000"

// Service is the part of the training service the tracker depends on.
type Service interface {
	Submit(ctx context.Context, cfg Config, dataset string) (string, error)
	Status(ctx context.Context, jobID string) (*Job, error)
}

// Client talks to the training service over HTTP.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

var _ Service = (*Client)(nil)

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// BaseURL returns the service root the client sends requests to.
func (c *Client) BaseURL() string { return c.baseURL }

// request is one logical call; the body is rebuilt from payload on every attempt.
type request struct {
	method      string
	path        string
	payload     []byte
	contentType string
}

// do sends req with retries and decodes a 2xx JSON body into out. Network errors
// and 5xx responses are only retried for idempotent methods; 429 is always retried.
func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + req.path
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	idempotent := req.method == http.MethodGet || req.method == http.MethodDelete
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var body io.Reader
		if req.payload != nil {
			body = bytes.NewReader(req.payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("X-Request-Id", requestID)
		if req.contentType != "" {
			httpReq.Header.Set("Content-Type", req.contentType)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if idempotent && isRetryableNetErr(err) && attempt < maxAttempts {
				lastErr = err
				if err := sleepCtx(ctx, c.capDelay(withJitter(backoff))); err != nil {
					return err
				}
				backoff *= 2
				continue
			}
			if isUnreachable(err) {
				return &UnreachableError{Host: c.baseURL, Err: err}
			}
			return fmt.Errorf("http request: %w", err)
		}

		retry := false
		var wait time.Duration
		func() {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				apiErr := decodeAPIError(resp, requestID)
				retryable := resp.StatusCode == http.StatusTooManyRequests ||
					(idempotent && resp.StatusCode >= 500 && resp.StatusCode <= 599)
				if retryable && attempt < maxAttempts {
					retry = true
					lastErr = apiErr
					wait = c.capDelay(withJitter(backoff))
					// Respect Retry-After header if present (seconds or HTTP date).
					if ra := resp.Header.Get("Retry-After"); ra != "" {
						if secs, err := parseRetryAfterSeconds(ra); err == nil && secs > 0 {
							wait = time.Duration(secs) * time.Second
							lastErr = &RateLimitError{APIError: apiErr, RetryAfter: wait}
						}
					}
					return
				}
				lastErr = classifyAPIError(apiErr, resp)
				return
			}
			if out == nil {
				lastErr = nil
				return
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				lastErr = fmt.Errorf("decode response: %w", err)
				return
			}
			lastErr = nil
		}()
		if lastErr == nil {
			return nil
		}
		if !retry {
			return lastErr
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
		backoff *= 2
	}
	return lastErr
}

func (c *Client) capDelay(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

// Health fetches the service health summary.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, request{method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit starts training on a dataset previously uploaded to the service and
// returns the job id it assigned.
func (c *Client) Submit(ctx context.Context, cfg Config, dataset string) (string, error) {
	if strings.TrimSpace(dataset) == "" {
		return "", errors.New("dataset filename cannot be empty")
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	var out struct {
		Message string `json:"message"`
		JobID   string `json:"job_id"`
		Status  Status `json:"status"`
	}
	req := request{
		method:      http.MethodPost,
		path:        "/start_training?dataset_filename=" + url.QueryEscape(dataset),
		payload:     payload,
		contentType: "application/json",
	}
	if err := c.do(ctx, req, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", errors.New("service response carried no job id")
	}
	return out.JobID, nil
}

// Status fetches the current state of one job.
func (c *Client) Status(ctx context.Context, jobID string) (*Job, error) {
	var out Job
	if err := c.do(ctx, request{method: http.MethodGet, path: "/training_status/" + url.PathEscape(jobID)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs lists every job the service knows about.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/training_jobs"}, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Datasets lists the uploaded datasets.
func (c *Client) Datasets(ctx context.Context) ([]Dataset, error) {
	var out struct {
		Datasets []Dataset `json:"datasets"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/datasets"}, &out); err != nil {
		return nil, err
	}
	return out.Datasets, nil
}

// Models lists the trained models.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/models"}, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// DeleteModel removes every stored file of a model and returns their names.
func (c *Client) DeleteModel(ctx context.Context, name string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("model name cannot be empty")
	}
	var out struct {
		Message string   `json:"message"`
		Files   []string `json:"files"`
	}
	if err := c.do(ctx, request{method: http.MethodDelete, path: "/models/" + url.PathEscape(name)}, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// UploadDataset sends a CSV file as multipart form data under the "file" field.
func (c *Client) UploadDataset(ctx context.Context, filename string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	var out Upload
	req := request{
		method:      http.MethodPost,
		path:        "/upload_dataset",
		payload:     buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeAPIError reads an error body. The service reports failures as
// {"detail": "..."}; {"error": {...}} and {"message": "..."} shapes are also read.
func decodeAPIError(resp *http.Response, requestID string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw}
	apiErr.RequestID = extractRequestID(resp)
	if apiErr.RequestID == "" {
		apiErr.RequestID = requestID
	}
	if v, ok := raw["error"].(map[string]any); ok {
		if msg, ok := v["message"].(string); ok {
			apiErr.Message = msg
		}
		if code, ok := v["code"].(string); ok {
			apiErr.Code = code
		}
		return apiErr
	}
	switch d := raw["detail"].(type) {
	case string:
		apiErr.Message = d
	case []any:
		// validation errors: a list of {"loc": [...], "msg": "..."}
		var msgs []string
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if s, ok := m["msg"].(string); ok {
					msgs = append(msgs, s)
				}
			}
		}
		apiErr.Message = strings.Join(msgs, "; ")
	}
	if apiErr.Message == "" {
		if msg, ok := raw["message"].(string); ok {
			apiErr.Message = msg
		}
	}
	if code, ok := raw["code"].(string); ok {
		apiErr.Code = code
	}
	return apiErr
}

// classifyAPIError maps generic APIError to typed errors for better UX.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	sc := apiErr.StatusCode
	switch {
	case sc == http.StatusTooManyRequests:
		var ra time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := parseRetryAfterSeconds(v); err == nil && secs > 0 {
				ra = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc == http.StatusNotFound:
		return &NotFoundError{APIError: apiErr}
	case sc == http.StatusBadRequest || sc == http.StatusUnprocessableEntity:
		return &BadRequestError{APIError: apiErr}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return false
}

func isUnreachable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// parseRetryAfterSeconds tries to interpret Retry-After header value as seconds or HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Correlation-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
