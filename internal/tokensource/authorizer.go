package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/ttnews/ttclient/internal/apiclient"
	"github.com/ttnews/ttclient/internal/session"
)

// AuthorizationsPath is the token endpoint: POST logs in, PUT refreshes.
const AuthorizationsPath = "/app/v1_0/authorizations"

// Sender performs a request. *apiclient.Client implements it.
type Sender interface {
	Send(ctx context.Context, req *apiclient.Request) (*apiclient.Response, error)
}

// Authorizer obtains credentials from the token endpoint.
// It must be given a client without request editors or error hooks (see
// apiclient.NewRefreshClient): a rejected refresh has to fail plainly instead
// of re-entering the 401 handling that asked for it.
type Authorizer struct {
	client Sender
}

// Compile-time check that Authorizer can refresh tokens for the request client.
var _ apiclient.Refresher = (*Authorizer)(nil)

// NewAuthorizer creates an authorizer sending through client.
func NewAuthorizer(client Sender) *Authorizer {
	return &Authorizer{client: client}
}

// Login exchanges a mobile number and SMS verification code for a credential.
func (a *Authorizer) Login(ctx context.Context, mobile, code string) (*session.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mobile == "" || code == "" {
		return nil, errors.New("mobile and code cannot be empty")
	}

	req, err := apiclient.NewJSONRequest(http.MethodPost, AuthorizationsPath, loginRequest{
		Mobile: mobile,
		Code:   code,
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	var body loginResponse
	if err := resp.Scan(&body); err != nil {
		return nil, err
	}
	if body.Data.Token == "" || body.Data.RefreshToken == "" {
		return nil, errors.New("login response is missing token or refresh_token")
	}

	slog.DebugContext(ctx, "tokensource: logged in")
	return &session.Credential{
		Token:        body.Data.Token,
		RefreshToken: body.Data.RefreshToken,
	}, nil
}

// Refresh exchanges refreshToken for a new access token. The refresh token is
// sent as the bearer credential; the new token is read from data.token.
func (a *Authorizer) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if refreshToken == "" {
		return "", errors.New("refresh token cannot be empty")
	}

	resp, err := a.client.Send(ctx, &apiclient.Request{
		Method: http.MethodPut,
		Path:   AuthorizationsPath,
		Header: http.Header{"Authorization": []string{"Bearer " + refreshToken}},
	})
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}

	token := gjson.GetBytes(resp.Body, "data.token").String()
	if token == "" {
		return "", errors.New("refresh response is missing data.token")
	}
	return token, nil
}

// loginRequest is the body of the login call.
type loginRequest struct {
	Mobile string `json:"mobile"`
	Code   string `json:"code"`
}

// loginResponse is the envelope returned by the login call.
type loginResponse struct {
	Message string `json:"message"`
	Data    struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}
