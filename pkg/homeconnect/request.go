package homeconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/homeconnect/pkg/slogx"
)

// Fallback delay applied when the server signals throttling without a
// usable Retry-After value. Token refresh rate limits are longer lived
// than API rate limits.
const (
	defaultRetryAfter        = 5 * time.Second
	refreshRateLimitDelay    = time.Minute
	tooManyRequestsSignature = "too many requests"
)

// request describes one raw HTTP call for the executor.
type request struct {
	method string
	path   string
	query  url.Values
	form   url.Values // urlencoded body (token endpoints)
	json   any        // SDK media type body (appliance API)
	accept string     // defaults to the SDK media type
	bearer bool       // attach Authorization from the live record
	// noFollow disables redirect following; a redirect response then
	// becomes a successful outcome carrying the Location target.
	noFollow bool
	// stream leaves the response body open for the caller.
	stream bool
}

// response is a classified successful outcome.
type response struct {
	status   int
	header   http.Header
	body     []byte
	redirect string        // Location of a blocked redirect
	stream   io.ReadCloser // open body in stream mode
}

// do executes a single HTTP call and classifies the outcome. It has no
// awareness of authorization state beyond reading the bearer token at send
// time; invalidation decisions belong to the callers feeding the
// authorization monitor. Every call is logged with a monotonic request id,
// the request line and the elapsed time, whatever the outcome.
func (c *Client) do(ctx context.Context, req request) (*response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.form != nil:
		body = strings.NewReader(req.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.json != nil:
		data, err := json.Marshal(req.json)
		if err != nil {
			return nil, fmt.Errorf("homeconnect: marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = sdkMediaType
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("homeconnect: create request: %w", err)
	}

	accept := req.accept
	if accept == "" {
		accept = sdkMediaType
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Accept-Language", c.language)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.bearer {
		token := c.auth.accessToken()
		if token == "" {
			return nil, ErrNoAccessToken
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	id := c.newRequestID()
	log := c.log.With("req_id", id, "method", req.method, "path", req.path)
	start := time.Now()

	// Custom transports and RoundTripper middleware can pick the tagged
	// logger off the request context.
	httpReq = httpReq.WithContext(slogx.WithRequestID(slogx.WithContext(ctx, c.log), id))

	httpClient := c.http
	switch {
	case req.stream:
		httpClient = c.streamHTTP
	case req.noFollow:
		httpClient = c.noRedirect
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		log.Warn("request failed", "elapsed", time.Since(start), "error", err)
		return nil, fmt.Errorf("homeconnect: %s %s: %w", req.method, req.path, err)
	}

	if req.stream && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Debug("stream opened", "status", resp.StatusCode, "elapsed", time.Since(start))
		return &response{status: resp.StatusCode, header: resp.Header, stream: resp.Body}, nil
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	log.Debug("request complete", "status", resp.StatusCode, "elapsed", time.Since(start))
	if readErr != nil {
		return nil, fmt.Errorf("homeconnect: read response body: %w", readErr)
	}

	out := &response{status: resp.StatusCode, header: resp.Header, body: respBody}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out, nil

	case resp.StatusCode >= 300 && resp.StatusCode < 400 && req.noFollow:
		// A blocked redirect is the success path for the simulator code
		// grant: the authorization code rides in the Location target.
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, fmt.Errorf("homeconnect: redirect response missing Location header")
		}
		out.redirect = location
		return out, nil

	default:
		return nil, c.classifyError(resp.StatusCode, resp.Header, respBody)
	}
}

// classifyError maps an error response body to one of: retryable,
// token-invalidating, grant-invalidating or fatal. Retryable
// outcomes mark the rate limiter before returning.
func (c *Client) classifyError(status int, header http.Header, body []byte) error {
	// OAuth token endpoint shape: {"error": "...", "error_description": "..."}
	var tokErr TokenError
	if err := json.Unmarshal(body, &tokErr); err == nil && tokErr.Code != "" {
		tokErr.StatusCode = status
		switch tokErr.Code {
		case ErrorCodeAccessDenied:
			if strings.Contains(strings.ToLower(tokErr.Description), tooManyRequestsSignature) {
				delay := retryAfterDelay(header, refreshRateLimitDelay)
				c.limiter.Delay(delay)
				return &retryableError{err: &tokErr, delay: delay}
			}
		case ErrorCodeUnauthorizedClient:
			tokErr.Remediation = remediationFor(tokErr.Description)
		}
		return &tokErr
	}

	// Appliance API shape: {"error": {"key": "...", "description": "..."}}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Key != "" {
		apiErr := envelope.Error
		apiErr.StatusCode = status
		if apiErr.Key == errorKeyRateLimited {
			delay := retryAfterDelay(header, defaultRetryAfter)
			c.limiter.Delay(delay)
			return &retryableError{err: apiErr, delay: delay}
		}
		return apiErr
	}

	// No machine-readable code: fatal, classified by nothing but the
	// status line.
	return &APIError{
		StatusCode:  status,
		Key:         strconv.Itoa(status),
		Description: http.StatusText(status),
	}
}

// retryAfterDelay parses a Retry-After header, handling both delta-seconds
// and HTTP-date forms, falling back to the given default.
func retryAfterDelay(header http.Header, fallback time.Duration) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

// apiRequest runs one facade operation: rate-limit gate, raw call, retry
// loop on retryable outcomes, auth-monitor notification on invalidating
// ones, envelope unwrap on success.
func (c *Client) apiRequest(ctx context.Context, method, path string, body any, dest any) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.do(ctx, request{method: method, path: path, json: body, bearer: true})
		if err != nil {
			c.noteAuthFailure(err)
			if IsRetryable(err) && ctx.Err() == nil {
				continue
			}
			return err
		}

		if dest == nil || len(resp.body) == 0 {
			return nil
		}
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(resp.body, &envelope); err != nil {
			return fmt.Errorf("homeconnect: decode response envelope: %w", err)
		}
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return fmt.Errorf("homeconnect: decode response data: %w", err)
		}
		return nil
	}
}

// noteAuthFailure feeds auth-invalidating outcomes back into the
// authorization monitor. Other errors pass through untouched.
func (c *Client) noteAuthFailure(err error) {
	switch {
	case invalidatesAccessToken(err):
		c.auth.invalidateAccessToken()
	case invalidatesGrant(err):
		c.auth.invalidateGrant(err)
	}
}
