package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"call-compass-go/internal/logger"
	"call-compass-go/internal/metrics"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL         string
	HTTPClient      *http.Client
	MaxRetryElapsed time.Duration
	UploadTimeout   time.Duration
	Logger          *logger.Logger
}

// Client talks to the analysis backend. It never mutates application state: callers merge
// what it returns.
type Client struct {
	baseURL       string
	http          *http.Client
	maxElapsed    time.Duration
	uploadTimeout time.Duration
	log           *logger.Logger
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		http:          opts.HTTPClient,
		maxElapsed:    opts.MaxRetryElapsed,
		uploadTimeout: opts.UploadTimeout,
		log:           opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = "http://localhost:5000/api"
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.maxElapsed <= 0 {
		c.maxElapsed = 10 * time.Second
	}
	if c.uploadTimeout <= 0 {
		c.uploadTimeout = 30 * time.Second
	}
	if c.log == nil {
		c.log = logger.New()
	}
	c.log = c.log.WithComponent("gateway")
	return c
}

// doJSON sends payload (nil for GET) and decodes the JSON answer into target.
// Network failures and 5xx answers are retried with exponential backoff; 4xx answers and
// undecodable bodies are not.
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload, target any) error {
	start := time.Now()
	defer func() {
		metrics.GatewayDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return newError(op, KindValidation, 0, fmt.Errorf("encode request: %w", err))
		}
	}
	reqID := uuid.New().String()
	log := c.log.WithField("op", op).WithField("req_id", reqID)

	var lastErr error
	attempt := 0
	operation := func() error {
		attempt++
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			lastErr = newError(op, KindValidation, 0, err)
			return backoff.Permanent(lastErr)
		}
		req.Header.Set("X-Request-ID", reqID)
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = classify(op, err)
			log.WithField("attempt", attempt).WithError(err).Warn("backend request failed")
			if ctx.Err() != nil {
				return backoff.Permanent(lastErr)
			}
			return lastErr
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = classify(op, err)
			return lastErr
		}

		if resp.StatusCode >= 500 {
			lastErr = newError(op, KindBackend, resp.StatusCode, errors.New(backendMessage(raw, resp.Status)))
			log.WithField("attempt", attempt).WithField("http_status", resp.StatusCode).Warn("backend server error")
			return lastErr
		}
		if resp.StatusCode >= 300 {
			lastErr = newError(op, KindBackend, resp.StatusCode, errors.New(backendMessage(raw, resp.Status)))
			return backoff.Permanent(lastErr)
		}
		if target == nil {
			lastErr = nil
			return nil
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			lastErr = newError(op, KindParse, resp.StatusCode, errors.New("empty body"))
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(raw, target); err != nil {
			lastErr = newError(op, KindParse, resp.StatusCode, fmt.Errorf("json decode error: %w", err))
			return backoff.Permanent(lastErr)
		}
		lastErr = nil
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = classify(op, err)
		}
		metrics.GatewayRequests.WithLabelValues(op, string(KindOf(lastErr))).Inc()
		return lastErr
	}
	metrics.GatewayRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// backendMessage pulls {"error": "..."} or {"message": "..."} out of an error body.
func backendMessage(raw []byte, status string) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" && len(s) < 512 {
		return s
	}
	return status
}
