package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/linefleet/linefleet/pkg/logutil"
	"github.com/linefleet/linefleet/pkg/util"
	"github.com/natefinch/atomic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultTimeout = 60 * time.Second

	headerRequestID = "X-Request-Id"
	contentTypeJSON = "application/json"
)

// Config for the controller transport.
type Config struct {
	// Logger is the logger the client uses. If nil, slog.Default is used.
	Logger *slog.Logger
	// ServerURL is the controller base URL, e.g. http://controller:5000.
	ServerURL string
	// Version is reported in the User-Agent header.
	Version string
	// Timeout bounds JSON and upload requests. Zero means DefaultTimeout.
	// Downloads are bounded only by their context.
	Timeout time.Duration
	// RoundTripper replaces the default HTTP transport. Optional.
	RoundTripper http.RoundTripper
}

// Client talks to the controller. Every call is synchronous and collapses all
// failure causes into a false result; causes are only logged.
type Client struct {
	logger    *slog.Logger
	base      Endpoint
	userAgent string

	api      *retryablehttp.Client
	download *retryablehttp.Client
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "transport")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rt := cfg.RoundTripper
	if rt == nil {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Client{
		logger:    logger,
		base:      ResolveURL(cfg.ServerURL),
		userAgent: "linefleet-agent/" + version,
		api:       newRetryableClient(logger, rt, timeout),
		download:  newRetryableClient(logger, rt, 0),
	}
}

// newRetryableClient builds a client that never retries; retry policy belongs
// to the lifecycle loop.
func newRetryableClient(logger *slog.Logger, rt http.RoundTripper, timeout time.Duration) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(rt),
		Timeout:   timeout,
	}
	return rc
}

// Endpoint returns the decomposed controller address.
func (c *Client) Endpoint() Endpoint {
	return c.base
}

// Post sends payload as JSON to a controller-relative endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, payload any) (Response, bool) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.With("endpoint", endpoint, "err", err).Warn("failed to encode request payload")
		return nil, false
	}
	return c.roundTrip(ctx, http.MethodPost, c.resolve(endpoint), contentTypeJSON, body)
}

// Get fetches a controller-relative endpoint.
func (c *Client) Get(ctx context.Context, endpoint string) (Response, bool) {
	return c.roundTrip(ctx, http.MethodGet, c.resolve(endpoint), "", nil)
}

// UploadFile posts localPath as a multipart body to target, which may be an
// absolute URL or a controller-relative path.
func (c *Client) UploadFile(ctx context.Context, target, localPath, fieldValue string) (Response, bool) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		c.logger.With("path", localPath, "err", err).Warn("failed to read upload file")
		return nil, false
	}
	body := EncodeMultipart(fieldValue, localPath, content)
	return c.roundTrip(ctx, http.MethodPost, c.resolve(target), MultipartContentType(), body)
}

// DownloadFile streams source into destinationPath. source may be an absolute
// URL or a path on the controller.
func (c *Client) DownloadFile(ctx context.Context, source, destinationPath string) bool {
	url := c.resolve(source)
	logger := logutil.WithMethod(c.logger, http.MethodGet).With("url", url)

	req, err := c.newRequest(ctx, http.MethodGet, url, "", nil)
	if err != nil {
		logger.With("err", err).Warn("failed to build download request")
		return false
	}
	resp, err := c.download.Do(req)
	if err != nil {
		logger.With("err", err).Warn("download failed")
		return false
	}
	defer resp.Body.Close()
	if !success(resp.StatusCode) {
		logger.With("status", resp.StatusCode).Warn("download rejected")
		return false
	}
	if err := atomic.WriteFile(destinationPath, resp.Body); err != nil {
		logger.With("dest", destinationPath, "err", err).Warn("failed to write download")
		return false
	}
	logger.With("dest", destinationPath).Debug("download complete")
	return true
}

func (c *Client) resolve(target string) string {
	if IsAbsolute(target) {
		return ResolveURL(target).URL()
	}
	return c.base.Join(target)
}

func (c *Client) newRequest(ctx context.Context, method, url, contentType string, body []byte) (*retryablehttp.Request, error) {
	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(headerRequestID, util.NewUUID())
	return req, nil
}

func (c *Client) roundTrip(ctx context.Context, method, url, contentType string, body []byte) (Response, bool) {
	logger := logutil.WithMethod(c.logger, method).With("url", url)

	req, err := c.newRequest(ctx, method, url, contentType, body)
	if err != nil {
		logger.With("err", err).Warn("failed to build request")
		return nil, false
	}
	resp, err := c.api.Do(req)
	if err != nil {
		logger.With("err", err).Debug("request failed")
		return nil, false
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.With("err", err).Debug("failed to read response body")
		return nil, false
	}
	if !success(resp.StatusCode) {
		logger.With("status", resp.StatusCode, "body", string(bytes.TrimSpace(respBody))).Warn("controller returned an error")
		return nil, false
	}
	out, err := decodeResponse(respBody)
	if err != nil {
		logger.With("err", err).Debug("unparseable response")
		return nil, false
	}
	return out, true
}

func success(code int) bool {
	return code >= 200 && code < 300
}
