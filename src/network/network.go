package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"token-observer/src/logger"
	"token-observer/src/models"
	"token-observer/src/utils"
)

// -----------------------------------------------------------------------------

// ErrRateLimited marks an HTTP 429 so callers can map it into their own
// error taxonomy.
type RateLimitedError struct {
	URL string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s", e.URL)
}

// -----------------------------------------------------------------------------

type AsyncNetworkManager struct {
	Config  *models.MConfig
	Client  *http.Client
	Limiter *utils.Limiter
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	return &AsyncNetworkManager{
		Config:  cfg,
		Limiter: utils.NewLimiter(cfg.Network.ConcurrentRequests),
		Logger:  log,
		Client: &http.Client{
			Timeout: time.Duration(cfg.Network.RequestTimeout) * time.Second,
		},
	}
}

// -----------------------------------------------------------------------------

// Post sends a JSON payload with retries and exponential backoff. Concurrency
// across all callers is bounded by the shared limiter.
func (nm *AsyncNetworkManager) Post(ctx context.Context, urlStr string, payload []byte) ([]byte, error) {
	return nm.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, urlStr)
}

// -----------------------------------------------------------------------------

// Get performs a GET request with query parameters, retries and backoff.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqUrl.RawQuery = q.Encode()
	finalUrl := reqUrl.String()

	return nm.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, finalUrl, nil)
	}, finalUrl)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) doWithRetry(ctx context.Context, build func() (*http.Request, error), urlStr string) ([]byte, error) {
	if err := nm.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer nm.Limiter.Release()

	maxRetries := nm.Config.Network.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			// Exponential backoff between attempts, abandoned on cancellation.
			select {
			case <-time.After(time.Duration(i*i) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := nm.Client.Do(req)
		if err != nil {
			lastErr = err
			nm.Logger.Warning("Request attempt %d/%d failed for %s: %v", i+1, maxRetries+1, urlStr, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			// Do not burn retries against a rate limiter.
			return nil, &RateLimitedError{URL: urlStr}
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d from %s", resp.StatusCode, urlStr)
			nm.Logger.Warning("Request attempt %d/%d: %v", i+1, maxRetries+1, lastErr)
			continue
		}

		if readErr != nil {
			lastErr = readErr
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", urlStr, maxRetries+1, lastErr)
}
