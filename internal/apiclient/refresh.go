package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ttnews/ttclient/internal/session"
)

// errNoRefresher is the refresh failure reported when no Refresher is configured.
var errNoRefresher = errors.New("no token refresher configured")

// currentPathContextKey is the context key for the route path of a call.
type currentPathContextKey struct{}

// ContextWithCurrentPath returns a copy of ctx whose calls redirect back to path
// on login, instead of the navigator's current path. Used when several routes
// are worked on concurrently.
func ContextWithCurrentPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, currentPathContextKey{}, path)
}

// recoverAuth runs the 401 protocol for herr:
//   - no credential, or a replay rejected again: redirect to login and reject;
//   - the session already holds a newer token than the one sent: replay;
//   - otherwise refresh once, commit the new token and replay.
//
// Concurrent refreshes for the same refresh token share one call. The shared
// call is detached from the caller that started it, so a canceled caller
// neither fails the others nor is sent to login.
func (c *Client) recoverAuth(ctx context.Context, herr *HTTPError, replay bool) (*Response, error) {
	var user *session.Credential
	if c.session != nil {
		user = c.session.User()
	}
	if !user.HasToken() {
		slog.InfoContext(ctx, "apiclient: unauthorized without credential, redirecting to login")
		c.redirectLogin(ctx)
		return nil, herr
	}
	if replay {
		slog.WarnContext(ctx, "apiclient: replayed request unauthorized, redirecting to login")
		c.redirectLogin(ctx)
		return nil, herr
	}

	// Another caller refreshed while this request was in flight.
	if c.tokenChanged(herr, user) {
		slog.DebugContext(ctx, "apiclient: session token changed since request was sent, replaying")
		return c.send(ctx, herr.Request, true)
	}

	resCh := c.refreshGroup.DoChan(user.RefreshToken, func() (any, error) {
		// The previous flight may have committed after user was read.
		if current := c.session.User(); c.tokenChanged(herr, current) {
			return current.Token, nil
		}
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return c.refresh(refreshCtx, user.RefreshToken)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		slog.DebugContext(ctx, "apiclient: caller canceled while waiting for token refresh")
		herr.Cause = ctx.Err()
		return nil, herr
	case res = <-resCh:
	}

	if res.Err != nil {
		herr.Cause = res.Err
		if ctx.Err() != nil {
			return nil, herr
		}
		slog.WarnContext(ctx, "apiclient: token refresh failed, redirecting to login", "error", res.Err)
		c.redirectLogin(ctx)
		return nil, herr
	}
	slog.DebugContext(ctx, "apiclient: token refreshed, replaying request", "shared", res.Shared)

	return c.send(ctx, herr.Request, true)
}

// tokenChanged reports whether user holds a token other than the one herr's
// attempt was sent with.
func (c *Client) tokenChanged(herr *HTTPError, user *session.Credential) bool {
	return user.HasToken() && herr.authorization != "Bearer "+user.Token
}

// refreshTimeout bounds a shared refresh, which no caller's context can cancel.
func (c *Client) refreshTimeout() time.Duration {
	if c.httpClient != nil && c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return DefaultTimeout
}

// refresh obtains a new access token and commits it to the session.
// A failed commit is logged: the in-memory session already holds the new token.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	if c.refresher == nil {
		return "", errNoRefresher
	}
	token, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if err := c.session.UpdateToken(ctx, token); err != nil {
		slog.WarnContext(ctx, "apiclient: failed to commit refreshed token", "error", err)
	}
	slog.InfoContext(ctx, "apiclient: access token refreshed")
	return token, nil
}

func (c *Client) redirectLogin(ctx context.Context) {
	c.notify(ctx, KindAuthExpired)

	path, ok := ctx.Value(currentPathContextKey{}).(string)
	if !ok || path == "" {
		path = c.navigator.CurrentPath()
	}
	route := Route{
		Name:  LoginRouteName,
		Query: map[string]string{"redirect": path},
	}
	if err := c.navigator.Replace(ctx, route); err != nil {
		slog.WarnContext(ctx, "apiclient: login redirect failed", "error", err)
	}
}
