// Package apiclient is the HTTP client for the headline-news backend API.
//
// A Client resolves request paths against a fixed base URL and adds the
// cross-cutting behavior every call needs:
//
//   - Response bodies are decoded as JSON with numbers kept as json.Number, so
//     64-bit IDs survive exactly. Bodies that are not JSON are returned as text.
//   - Request editors attach the session's bearer credential, an X-Request-ID and
//     W3C trace context to every outgoing request.
//   - Failed responses are classified by status code. 400, 403 and 5xx surface a
//     notification; 401 triggers a single token refresh and replays the request.
//
// # Token refresh
//
// The refresh call goes through a Refresher, normally backed by a client made
// with NewRefreshClient. That client has no editors and no error hook, so a
// failing refresh can never re-enter the 401 handler:
//
//	refresh, err := apiclient.NewRefreshClient(baseURL)
//	if err != nil {
//	  return err
//	}
//	client, err := apiclient.New(baseURL,
//	  apiclient.WithSession(sess),
//	  apiclient.WithRefresher(tokensource.NewAuthorizer(refresh)),
//	  apiclient.WithNotifier(notifier),
//	  apiclient.WithNavigator(navigator),
//	)
//
// Concurrent 401s share one refresh call, and a replayed request that is
// rejected again is sent to the login route instead of refreshing twice. A
// caller that gives up while waiting for a shared refresh is rejected with its
// context error and is not sent to login.
package apiclient
