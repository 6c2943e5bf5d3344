package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/ttnews/ttclient/internal/observability"
	"github.com/ttnews/ttclient/internal/session"
)

// DefaultTimeout bounds a single HTTP attempt when no client or timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client sends requests to the API base URL.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	editors    []RequestEditorFn

	// hooks enables the error hook; a refresh client runs without it.
	hooks     bool
	session   SessionStore
	refresher Refresher
	notifier  Notifier
	navigator Navigator
	messages  Messages

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient = &http.Client{Timeout: d}
	}
}

// WithSession sets the credential store used for bearer auth and refresh.
func WithSession(s SessionStore) Option {
	return func(cl *Client) {
		cl.session = s
	}
}

// WithRefresher sets how access tokens are refreshed after a 401.
func WithRefresher(r Refresher) Option {
	return func(cl *Client) {
		cl.refresher = r
	}
}

// WithNotifier sets the user-visible notification surface.
func WithNotifier(n Notifier) Option {
	return func(cl *Client) {
		cl.notifier = n
	}
}

// WithNavigator sets the router used for login redirects.
func WithNavigator(n Navigator) Option {
	return func(cl *Client) {
		cl.navigator = n
	}
}

// WithMessages overrides the notification texts.
func WithMessages(m Messages) Option {
	return func(cl *Client) {
		cl.messages = m
	}
}

// WithRequestEditor appends an editor run after the built-in ones.
func WithRequestEditor(fn RequestEditorFn) Option {
	return func(cl *Client) {
		cl.editors = append(cl.editors, fn)
	}
}

// New creates the request client for baseURL.
// Editors run in order: bearer auth, request id, trace context, then WithRequestEditor ones.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:   base,
		hooks:     true,
		notifier:  nopNotifier{},
		navigator: nopNavigator{},
		messages:  DefaultMessages("en"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	builtin := []RequestEditorFn{RequestID(), TraceContext()}
	if c.session != nil {
		builtin = append([]RequestEditorFn{BearerAuth(tokenSource(c.session))}, builtin...)
	}
	c.editors = append(builtin, c.editors...)

	return c, nil
}

// NewRefreshClient creates a client for the token endpoint: same base URL, no
// request editors and no error hook, so a failing refresh never re-enters the
// 401 handling of the main client.
func NewRefreshClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: base,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	// Options may have set collaborators; a refresh client ignores them all.
	c.hooks = false
	c.editors = nil
	c.session = nil

	return c, nil
}

// BaseURL returns the URL request paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Send performs req. Non-2xx responses are returned as *HTTPError after the
// error hook ran; for a 401 the returned response may come from the replay.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	// One request ID covers the call, its token refresh and its replay.
	if _, ok := observability.RequestIDFromContext(ctx); !ok {
		ctx = observability.ContextWithRequestID(ctx, uuid.New().String())
	}
	return c.send(ctx, req, false)
}

// Get sends a GET request to path.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post sends body as JSON to path.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON to path.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body)
}

// Patch sends body as JSON to path.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

// Delete sends a DELETE request to path.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Send(ctx, &Request{Method: http.MethodDelete, Path: path, Query: query})
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// send performs one attempt of req. replay marks the attempt made after a refresh.
func (c *Client) send(ctx context.Context, req *Request, replay bool) (*Response, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	httpReq, err := req.build(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}
	for _, edit := range c.editors {
		if err := edit(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("request editor failed: %w", err)
		}
	}

	log := slog.Default().With(
		slog.String("method", httpReq.Method),
		slog.String("url", httpReq.URL.Redacted()),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.DebugContext(ctx, "request failed", "error", err)
		return nil, &HTTPError{Kind: KindUnclassified, Request: req, Cause: err}
	}

	// Read response body and close immediately to avoid resource leaks
	body, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil {
		log.WarnContext(ctx, "failed to close response body", "error", closeErr)
	}
	if err != nil {
		return nil, &HTTPError{Kind: KindUnclassified, StatusCode: resp.StatusCode, Request: req, Cause: fmt.Errorf("reading response body: %w", err)}
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Data:       DecodeBody(body),
		Request:    req,
	}
	log.DebugContext(ctx, "request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("replay", replay),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return response, nil
	}

	herr := &HTTPError{
		Kind:          classify(resp.StatusCode),
		StatusCode:    resp.StatusCode,
		Request:       req,
		Response:      response,
		authorization: httpReq.Header.Get("Authorization"),
	}
	if !c.hooks {
		return nil, herr
	}
	return c.handleError(ctx, herr, replay)
}

// handleError is the error hook: it notifies per kind and recovers 401s.
func (c *Client) handleError(ctx context.Context, herr *HTTPError, replay bool) (*Response, error) {
	switch herr.Kind {
	case KindAuthExpired:
		return c.recoverAuth(ctx, herr, replay)
	case KindClientError, KindForbidden, KindServerError:
		c.notify(ctx, herr.Kind)
	}
	return nil, herr
}

func (c *Client) notify(ctx context.Context, k Kind) {
	if msg := c.messages.forKind(k); msg != "" {
		c.notifier.Fail(ctx, msg)
	}
}

// tokenSource adapts a SessionStore to oauth2.TokenSource for BearerAuth.
func tokenSource(s SessionStore) oauth2.TokenSource {
	if ts, ok := s.(oauth2.TokenSource); ok {
		return ts
	}
	return sessionTokens{s}
}

type sessionTokens struct {
	s SessionStore
}

func (t sessionTokens) Token() (*oauth2.Token, error) {
	user := t.s.User()
	if !user.HasToken() {
		return nil, session.ErrNoCredential
	}
	return &oauth2.Token{AccessToken: user.Token, TokenType: "Bearer", RefreshToken: user.RefreshToken}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", raw)
	}
	// Relative request paths extend the base path instead of replacing its last segment.
	if len(base.Path) == 0 || base.Path[len(base.Path)-1] != '/' {
		base.Path += "/"
	}
	return base, nil
}
