// Package tokensource obtains and refreshes credentials for the headline-news API.
//
// The API issues a pair of tokens from a single endpoint:
//   - POST /app/v1_0/authorizations with {"mobile","code"} logs in and returns
//     data.token and data.refresh_token
//   - PUT /app/v1_0/authorizations with "Authorization: Bearer <refresh_token>"
//     returns a new data.token
//
// # Usage
//
// Build the Authorizer on a refresh client so token calls bypass the request
// client's hooks:
//
//	refresh, _ := apiclient.NewRefreshClient(baseURL)
//	auth := tokensource.NewAuthorizer(refresh)
//	cred, err := auth.Login(ctx, mobile, code)
//	// Hand auth to the request client for automatic refresh on 401
//	client, _ := apiclient.New(baseURL, apiclient.WithRefresher(auth))
package tokensource
