package dataplane

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/dwellir-public/haproxy-collector/internal/errors"
	"github.com/dwellir-public/haproxy-collector/internal/metrics"
	"github.com/dwellir-public/haproxy-collector/pkg/logger"
)

const configurationPath = "/v3/services/haproxy/configuration"

// Config holds Data Plane API client configuration
type Config struct {
	URL               string
	Username          string
	Password          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client is a read-only HAProxy Data Plane API client. It owns a single
// underlying HTTP client and is safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *logger.Logger
}

// NewClient creates a new Data Plane API client
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, apierrors.NewError(apierrors.ErrCodeConfigLoad, "dataplane_client", "no Data Plane API URL configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	// The management API sits next to a production data plane, so requests
	// are paced client-side.
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:  cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  limiter,
		logger:   log,
	}, nil
}

// Backends lists all configured backends
func (c *Client) Backends(ctx context.Context) ([]Backend, error) {
	var out []Backend
	if err := c.get(ctx, configurationPath+"/backends", "backends", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BackendServers lists the servers of one backend
func (c *Client) BackendServers(ctx context.Context, backend string) ([]Server, error) {
	var out []Server
	path := fmt.Sprintf("%s/backends/%s/servers", configurationPath, url.PathEscape(backend))
	if err := c.get(ctx, path, "backend_servers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BackendHTTPRequestRules lists the HTTP request rules of one backend
func (c *Client) BackendHTTPRequestRules(ctx context.Context, backend string) ([]HTTPRequestRule, error) {
	var out []HTTPRequestRule
	path := fmt.Sprintf("%s/backends/%s/http_request_rules", configurationPath, url.PathEscape(backend))
	if err := c.get(ctx, path, "backend_http_request_rules", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Frontends lists all configured frontends
func (c *Client) Frontends(ctx context.Context) ([]Frontend, error) {
	var out []Frontend
	if err := c.get(ctx, configurationPath+"/frontends", "frontends", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FrontendACLs lists the ACLs of one frontend
func (c *Client) FrontendACLs(ctx context.Context, frontend string) ([]ACL, error) {
	var out []ACL
	path := fmt.Sprintf("%s/frontends/%s/acls", configurationPath, url.PathEscape(frontend))
	if err := c.get(ctx, path, "frontend_acls", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FrontendSwitchingRules lists the backend switching rules of one frontend
func (c *Client) FrontendSwitchingRules(ctx context.Context, frontend string) ([]BackendSwitchingRule, error) {
	var out []BackendSwitchingRule
	path := fmt.Sprintf("%s/frontends/%s/backend_switching_rules", configurationPath, url.PathEscape(frontend))
	if err := c.get(ctx, path, "frontend_backend_switching_rules", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// get performs one rate-limited GET and decodes the JSON list response
func (c *Client) get(ctx context.Context, path, endpoint string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeAPIRequest, "dataplane_client", "rate limiter wait aborted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apierrors.WrapError(err, apierrors.ErrCodeAPIRequest, "dataplane_client", "failed to build request")
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return apierrors.WrapError(err, apierrors.ErrCodeAPIRequest, "dataplane_client",
			fmt.Sprintf("GET %s failed", path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		io.Copy(io.Discard, resp.Body)
		return apierrors.NewError(apierrors.ErrCodeAPIStatus, "dataplane_client",
			fmt.Sprintf("GET %s returned %s", path, resp.Status)).
			WithMetadata("status_code", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return apierrors.WrapError(err, apierrors.ErrCodeAPIRequest, "dataplane_client",
			fmt.Sprintf("failed to decode %s response", path))
	}

	metrics.APIRequestsTotal.WithLabelValues(endpoint, "success").Inc()
	c.logger.APILogger(c.baseURL).WithField("endpoint", endpoint).Debug("Fetched configuration records")
	return nil
}
