package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/ttnews/ttclient/internal/apiclient"
	"github.com/ttnews/ttclient/internal/session"
	"github.com/ttnews/ttclient/internal/tokensource"
	"github.com/ttnews/ttclient/internal/ui"
)

// maxConcurrentRequests bounds the fan-out of GetAll.
const maxConcurrentRequests = 4

// ErrReadOnlyStorage is returned when login or logout is attempted on env storage.
var ErrReadOnlyStorage = errors.New("env token storage is read-only; configure file or keyring storage")

// App wires the session, the request client and its collaborators from a Config.
type App struct {
	cfg        *Config
	session    *session.Session
	client     *apiclient.Client
	authorizer *tokensource.Authorizer
	notifier   *ui.Notifier
	navigator  *ui.Navigator
}

type options struct {
	store      session.Store
	httpClient *http.Client
}

// Option configures an App.
type Option func(*options)

// WithTokenStore overrides the store selected by the auth config.
func WithTokenStore(store session.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithHTTPClient sets the HTTP client shared by the request and refresh clients.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// New creates an App and loads the persisted session.
// Notifications and login prompts are written to out.
func New(ctx context.Context, cfg *Config, out io.Writer, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = cfg.Auth.NewTokenStore(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
	}

	sess := session.New(store)
	if err := sess.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	httpOpt := apiclient.WithTimeout(cfg.Timeout)
	if o.httpClient != nil {
		httpOpt = apiclient.WithHTTPClient(o.httpClient)
	}

	refreshClient, err := apiclient.NewRefreshClient(cfg.BaseURL, httpOpt)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh client: %w", err)
	}
	authorizer := tokensource.NewAuthorizer(refreshClient)

	notifier := ui.NewNotifier(out)
	navigator := ui.NewNavigator(out, "/")

	client, err := apiclient.New(cfg.BaseURL,
		httpOpt,
		apiclient.WithSession(sess),
		apiclient.WithRefresher(authorizer),
		apiclient.WithNotifier(notifier),
		apiclient.WithNavigator(navigator),
		apiclient.WithMessages(cfg.NotificationMessages()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request client: %w", err)
	}

	return &App{
		cfg:        cfg,
		session:    sess,
		client:     client,
		authorizer: authorizer,
		notifier:   notifier,
		navigator:  navigator,
	}, nil
}

// Client returns the request client.
func (a *App) Client() *apiclient.Client {
	return a.client
}

// Session returns the shared session.
func (a *App) Session() *session.Session {
	return a.session
}

// Navigator returns the CLI router.
func (a *App) Navigator() *ui.Navigator {
	return a.navigator
}

// Login signs in with a mobile number and SMS code and persists the credential.
func (a *App) Login(ctx context.Context, mobile, code string) error {
	if a.cfg.Auth.Storage == TokenStorageTypeEnv {
		return ErrReadOnlyStorage
	}

	cred, err := a.authorizer.Login(ctx, mobile, code)
	if err != nil {
		return err
	}
	if err := a.session.SetUser(ctx, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	slog.InfoContext(ctx, "logged in", "storage", a.cfg.Auth.Storage)
	return nil
}

// Logout clears the session and its persisted credential.
func (a *App) Logout(ctx context.Context) error {
	if a.cfg.Auth.Storage == TokenStorageTypeEnv {
		return ErrReadOnlyStorage
	}
	if err := a.session.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	slog.InfoContext(ctx, "logged out")
	return nil
}

// Refresh exchanges the stored refresh token for a new access token without
// waiting for a 401.
func (a *App) Refresh(ctx context.Context) error {
	user := a.session.User()
	if user == nil || user.RefreshToken == "" {
		return session.ErrNoCredential
	}

	token, err := a.authorizer.Refresh(ctx, user.RefreshToken)
	if err != nil {
		return err
	}
	if err := a.session.UpdateToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Do sends req with the CLI positioned at req's path, so an expired session
// redirects back to it.
func (a *App) Do(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error) {
	a.navigator.Navigate(currentPath(req.Path, req.Query))
	return a.client.Send(ctx, req)
}

// Result is the outcome of one GetAll path.
type Result struct {
	Path     string
	Response *apiclient.Response
	Err      error
}

// GetAll fetches paths concurrently. A failing path does not cancel the others;
// results are returned in the order of paths. Each call redirects back to its
// own path if the session cannot be recovered.
func (a *App) GetAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	var g errgroup.Group
	g.SetLimit(maxConcurrentRequests)
	for i, path := range paths {
		g.Go(func() error {
			pathCtx := apiclient.ContextWithCurrentPath(ctx, currentPath(path, nil))
			resp, err := a.client.Get(pathCtx, path, nil)
			results[i] = Result{Path: path, Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func currentPath(path string, query url.Values) string {
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path
}
