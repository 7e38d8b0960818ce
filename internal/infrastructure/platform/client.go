package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"trade_engine/internal/config"
	"trade_engine/internal/domain/entity"
	"trade_engine/pkg/contextx"
	"trade_engine/pkg/httpx"
	"trade_engine/pkg/logx"
	"trade_engine/pkg/metrics"
)

//nolint:gochecknoglobals
var (
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
	logger = contextx.LoggerFromContextOrDefault
)

const maxBodySize = 4 << 20

// Client is the typed RPC client of the trading platform and its companion
// services (valuation feed, common owners, instance resolver).
type Client struct {
	cfg     config.Platform
	http    *http.Client
	limiter *rate.Limiter

	owners   *cache.Cache
	feed     *cache.Cache
	lastFeed atomic.Pointer[[]entity.Valuation]

	ownersBackoff time.Duration
	retryBackoff  time.Duration
}

func New(cfg config.Platform) *Client {
	transport := httpx.NewLoggingRoundTripper(
		httpx.NewCSRFRoundTripper(http.DefaultTransport, cfg.Cookie),
		httpx.WithSensitiveDataMasker(logx.NewSensitiveDataMasker()),
		httpx.WithLogFieldMaxLen(4096),
	)

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1)),
		owners:        cache.New(cfg.OwnersTTL, 2*cfg.OwnersTTL),
		feed:          cache.New(cfg.ValuationTTL, 2*cfg.ValuationTTL),
		ownersBackoff: cfg.OwnersBackoff,
		retryBackoff:  cfg.RetryBackoff,
	}
}

// WithHTTPClient replaces the transport stack, mostly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// WithOwnersBackoff overrides the gap between common-owners attempts.
func (c *Client) WithOwnersBackoff(d time.Duration) *Client {
	c.ownersBackoff = d
	return c
}

// WithRetryBackoff overrides the gap between attempts of idempotent reads.
func (c *Client) WithRetryBackoff(d time.Duration) *Client {
	c.retryBackoff = d
	return c
}

// UserID is the account the client acts for.
func (c *Client) UserID() int64 {
	return c.cfg.UserID
}

// call executes one request and decodes a 2xx body into dest. Non-2xx
// responses are converted by mapError.
func (c *Client) call(ctx context.Context, op, method, url string, body, dest any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("limiter.Wait: %w", err)
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("json.Marshal: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PlatformRequests.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	metrics.PlatformRequests.WithLabelValues(op, statusClass(resp.StatusCode)).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.Header, transportError(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, mapError(resp.StatusCode, resp.Header, raw)
	}

	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return resp.Header, nil
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		logger(ctx).Warn("Unexpected platform response", "operation", op, logx.Error(err))
		return resp.Header, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return resp.Header, nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
