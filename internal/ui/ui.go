// Package ui provides the terminal renditions of the host application's
// notification surface and router for the ttclient CLI.
package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ttnews/ttclient/internal/apiclient"
)

// Notifier prints failure notifications to a terminal.
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

var _ apiclient.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier writing to out, usually os.Stderr.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

// Fail prints message and logs it at warn level.
func (n *Notifier) Fail(ctx context.Context, message string) {
	slog.WarnContext(ctx, "notification", "message", message)

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintf(n.out, "✖ %s\n", message); err != nil {
		slog.DebugContext(ctx, "failed to write notification", "error", err)
	}
}

// Navigator tracks the CLI's current route. Replacing it with the login route
// prints how to sign in again, keeping the path that was being worked on.
type Navigator struct {
	mu      sync.Mutex
	out     io.Writer
	current string
	history []apiclient.Route
}

var _ apiclient.Navigator = (*Navigator)(nil)

// NewNavigator creates a navigator positioned at path.
func NewNavigator(out io.Writer, path string) *Navigator {
	if path == "" {
		path = "/"
	}
	return &Navigator{out: out, current: path}
}

// CurrentPath returns the full path of the current route.
func (n *Navigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Navigate moves to path, e.g. when a command starts working on a new API path.
func (n *Navigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.current = path
}

// Replace moves to route, replacing the current entry.
func (n *Navigator) Replace(ctx context.Context, route apiclient.Route) error {
	if route.Name == "" {
		return fmt.Errorf("route name cannot be empty")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.current = FullPath(route)
	n.history = append(n.history, route)
	slog.InfoContext(ctx, "navigated", "route", route.Name, "path", n.current)

	if route.Name == apiclient.LoginRouteName {
		msg := "Session expired. Run 'ttclient auth login' to sign in again."
		if redirect := route.Query["redirect"]; redirect != "" {
			msg += fmt.Sprintf(" (was: %s)", redirect)
		}
		if _, err := fmt.Fprintln(n.out, msg); err != nil {
			return fmt.Errorf("failed to write login hint: %w", err)
		}
	}
	return nil
}

// Redirected reports whether the navigator was sent to the login route.
func (n *Navigator) Redirected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, r := range n.history {
		if r.Name == apiclient.LoginRouteName {
			return true
		}
	}
	return false
}

// FullPath renders route as "/<name>?<query>" with query keys sorted.
func FullPath(route apiclient.Route) string {
	path := "/" + strings.TrimPrefix(route.Name, "/")
	if len(route.Query) == 0 {
		return path
	}
	keys := make([]string, 0, len(route.Query))
	for k := range route.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Set(k, route.Query[k])
	}
	return path + "?" + q.Encode()
}
