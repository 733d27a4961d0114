package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"mailgate/internal/config"
	"mailgate/internal/constants"
	"mailgate/internal/logger"
	"mailgate/pkg/circuitbreaker"
	pkgerrors "mailgate/pkg/errors"
	"mailgate/pkg/metrics"
	"mailgate/pkg/models"
	"mailgate/pkg/retry"
)

type Client interface {
	RenewWatch(ctx context.Context) (*WatchRegistration, error)
	FetchWindow(ctx context.Context, since time.Time) ([]models.MailMessage, error)
}

// HTTPClient talks to the mail source API. Every call goes through the
// circuit breaker; transient failures inside a closed breaker are
// retried with backoff.
type HTTPClient struct {
	baseURL    string
	watchTopic string
	httpClient *http.Client
	breaker    *circuitbreaker.Wrapper
	policy     retry.Policy
	logger     logger.Logger
}

func NewClient(cfg config.UpstreamConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultUpstreamTimeout
	}

	breakerCfg := circuitbreaker.DefaultConfig("upstream-mail-source")
	if cbCfg.MaxRequests > 0 {
		breakerCfg.MaxRequests = cbCfg.MaxRequests
	}
	if cbCfg.Interval > 0 {
		breakerCfg.Interval = cbCfg.Interval
	}
	if cbCfg.Timeout > 0 {
		breakerCfg.Timeout = cbCfg.Timeout
	}
	if cbCfg.FailureRatio > 0 && cbCfg.MinRequests > 0 {
		breakerCfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cbCfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cbCfg.FailureRatio
		}
	}

	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		watchTopic: cfg.WatchTopicName,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.NewWrapper(breakerCfg),
		policy:     retry.DefaultPolicy(),
		logger:     log,
	}
}

func (c *HTTPClient) RenewWatch(ctx context.Context) (*WatchRegistration, error) {
	body, err := json.Marshal(watchRequest{TopicName: c.watchTopic})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal watch request: %w", err)
	}

	var registration WatchRegistration
	err = c.do(ctx, "renew_watch", http.MethodPost, "/watch", body, &registration)
	if err != nil {
		return nil, err
	}
	return &registration, nil
}

func (c *HTTPClient) FetchWindow(ctx context.Context, since time.Time) ([]models.MailMessage, error) {
	path := "/messages?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))

	var messages []models.MailMessage
	err := c.do(ctx, "fetch_window", http.MethodGet, path, nil, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *HTTPClient) do(ctx context.Context, operation, method, path string, body []byte, out interface{}) error {
	start := time.Now()

	err := retry.Retry(ctx, c.policy, func() error {
		_, execErr := c.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
			return nil, c.roundTrip(ctx, method, path, body, out)
		})
		if execErr == gobreaker.ErrOpenState || execErr == gobreaker.ErrTooManyRequests {
			// No point hammering an open breaker.
			return retry.NewFatalError(execErr)
		}
		return execErr
	})

	metrics.ObserveUpstreamDuration(operation, time.Since(start))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		c.logger.ErrorwCtx(ctx, "Upstream request failed",
			"operation", operation,
			"error", err,
		)
		return pkgerrors.ErrTransient.WithCause(err).WithDetail("operation", operation)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return retry.NewFatalError(fmt.Errorf("upstream rejected request with %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
