// Package httpclient is the JSON client for the Life Flow API.
//
// Every request carries the stored access token as a bearer credential. A
// 401 answer is recovered at most once: the client asks its refresh
// Coordinator for a new token and replays the request with it. Failures are
// reported as *Error.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/lifeflow/lifeflow/internal/config"
	"github.com/lifeflow/lifeflow/internal/refresh"
	"github.com/lifeflow/lifeflow/internal/tokenstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

const DefaultRefreshPath = "/api/auth/refresh"

type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	store       tokenstore.Store
	coordinator *refresh.Coordinator
	refreshPath string
	logger      *logrus.Logger

	// refresher is installed by the API layer after construction because
	// the refresh call itself goes through this client.
	refresher refresh.Func
}

type Option func(*Client)

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithRefreshPath changes the path whose 401s never trigger a refresh.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		c.refreshPath = path
	}
}

func New(
	cfg *config.ClientConfig,
	store tokenstore.Store,
	coordinator *refresh.Coordinator,
	logger *logrus.Logger,
	opts ...Option,
) (*Client, error) {
	baseURL, err := url.Parse(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Jar:     jar,
		},
		store:       store,
		coordinator: coordinator,
		refreshPath: DefaultRefreshPath,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetRefresher installs the call used to obtain a new access token.
// Without one, 401 answers are returned to the caller unchanged.
func (c *Client) SetRefresher(fn refresh.Func) {
	c.refresher = fn
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends body as JSON and decodes a successful response into out. Either
// may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	req := request{method: method, path: path}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return clientError(fmt.Errorf("failed to encode request body: %w", err))
		}
		req.body = encoded
	}

	res, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	if out != nil && len(bytes.TrimSpace(res.body)) > 0 {
		if err := json.Unmarshal(res.body, out); err != nil {
			return clientError(fmt.Errorf("failed to decode response body: %w", err))
		}
	}
	return nil
}

// request is immutable once built; a replay is a copy with a higher attempt
// and the token it must carry.
type request struct {
	method  string
	path    string
	body    []byte
	attempt int
	token   string
}

type response struct {
	status int
	body   []byte
}

func (c *Client) send(ctx context.Context, req request) (*response, error) {
	res, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}

	if res.status >= 200 && res.status < 300 {
		return res, nil
	}

	apiErr := statusError(res.status, res.body)
	if res.status != http.StatusUnauthorized {
		return nil, apiErr
	}

	if c.isRefreshPath(req.path) {
		c.store.Clear()
		return nil, apiErr
	}

	if req.attempt > 0 {
		c.logger.WithFields(logrus.Fields{
			"method": req.method,
			"path":   req.path,
		}).Debug("Replayed request rejected, clearing session")
		c.store.Clear()
		return nil, apiErr
	}

	if c.refresher == nil {
		return nil, apiErr
	}

	token, err := c.coordinator.Refresh(ctx, c.refresher)
	if err != nil {
		return nil, err
	}

	replay := req
	replay.attempt = req.attempt + 1
	replay.token = token
	return c.send(ctx, replay)
}

func (c *Client) roundTrip(ctx context.Context, req request) (*response, error) {
	target, err := c.resolve(req.path)
	if err != nil {
		return nil, clientError(err)
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return nil, clientError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	token := req.token
	if token == "" {
		token, _ = c.store.Get()
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpRes, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": req.method,
			"path":   req.path,
		}).Debug("Request got no response")
		return nil, noResponseError(err)
	}
	defer httpRes.Body.Close()

	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return nil, noResponseError(err)
	}

	return &response{
		status: httpRes.StatusCode,
		body:   data,
	}, nil
}

// resolve appends path to the base URL's path, so a base such as
// http://host/backend prefixes every request. Absolute URLs are used as is.
func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}

	target := *c.baseURL
	target.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	target.RawPath = ""
	target.RawQuery = ref.RawQuery
	target.Fragment = ref.Fragment
	return &target, nil
}

func (c *Client) isRefreshPath(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.TrimRight(path, "/"), c.refreshPath)
}
