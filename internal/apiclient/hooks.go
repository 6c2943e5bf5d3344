package apiclient

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"

	"github.com/ttnews/ttclient/internal/observability"
	"github.com/ttnews/ttclient/internal/session"
)

// RequestEditorFn edits each outgoing request before it is sent.
// A returned error rejects the call before any network I/O.
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// SessionStore is the shared credential the client reads and refreshes.
// *session.Session implements it.
type SessionStore interface {
	User() *session.Credential
	UpdateToken(ctx context.Context, token string) error
}

var _ SessionStore = (*session.Session)(nil)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// Notifier surfaces a user-visible failure message. Fire-and-forget.
type Notifier interface {
	Fail(ctx context.Context, message string)
}

// Route is a navigation target of the host application.
type Route struct {
	Name  string
	Query map[string]string
}

// LoginRouteName is the route a client sends the user to when the session cannot be recovered.
const LoginRouteName = "login"

// Navigator moves the host application to another route.
type Navigator interface {
	// CurrentPath returns the full path of the current route.
	CurrentPath() string
	// Replace navigates to route, replacing the current entry.
	Replace(ctx context.Context, route Route) error
}

// Messages are the notification texts per failure kind.
// An empty message disables the notification.
type Messages struct {
	BadRequest   string `koanf:"bad_request"`
	Unauthorized string `koanf:"unauthorized"`
	Forbidden    string `koanf:"forbidden"`
	ServerError  string `koanf:"server_error"`
}

// DefaultMessages returns the notification texts for locale ("en" or "zh").
// Unknown locales fall back to English.
func DefaultMessages(locale string) Messages {
	if locale == "zh" {
		return Messages{
			BadRequest:  "客户端请求参数异常",
			Forbidden:   "没有权限",
			ServerError: "服务器抽风了",
		}
	}
	return Messages{
		BadRequest:  "client request parameter error",
		Forbidden:   "no permission",
		ServerError: "server error",
	}
}

func (m Messages) forKind(k Kind) string {
	switch k {
	case KindClientError:
		return m.BadRequest
	case KindAuthExpired:
		return m.Unauthorized
	case KindForbidden:
		return m.Forbidden
	case KindServerError:
		return m.ServerError
	default:
		return ""
	}
}

// BearerAuth attaches the session's access token, if any, as a bearer credential.
func BearerAuth(src oauth2.TokenSource) RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		tok, err := src.Token()
		if err != nil || tok.AccessToken == "" {
			// Logged-out calls go out unauthenticated.
			return nil
		}
		tok.SetAuthHeader(req)
		return nil
	}
}

// RequestID sets the X-Request-ID header from the request ID in ctx, or a new
// one, unless the caller already set it.
func RequestID() RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		if req.Header.Get("X-Request-ID") != "" {
			return nil
		}
		id, ok := observability.RequestIDFromContext(ctx)
		if !ok {
			id = uuid.New().String()
		}
		req.Header.Set("X-Request-ID", id)
		return nil
	}
}

// TraceContext injects the W3C trace context of ctx into the request headers.
// Does nothing when ctx carries no span.
func TraceContext() RequestEditorFn {
	return func(ctx context.Context, req *http.Request) error {
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
		return nil
	}
}

// nopNotifier logs notifications when the host supplies no notifier.
type nopNotifier struct{}

func (nopNotifier) Fail(ctx context.Context, message string) {
	slog.DebugContext(ctx, "apiclient: notification dropped", "message", message)
}

// nopNavigator logs navigations when the host supplies no navigator.
type nopNavigator struct{}

func (nopNavigator) CurrentPath() string { return "/" }

func (nopNavigator) Replace(ctx context.Context, route Route) error {
	slog.DebugContext(ctx, "apiclient: navigation dropped", "route", route.Name)
	return nil
}
