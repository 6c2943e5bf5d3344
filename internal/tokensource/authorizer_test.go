package tokensource

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttnews/ttclient/internal/apiclient"
	"github.com/ttnews/ttclient/internal/session"
)

func newAuthorizer(t *testing.T, handler http.HandlerFunc) *Authorizer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := apiclient.NewRefreshClient(server.URL)
	require.NoError(t, err)
	return NewAuthorizer(client)
}

func TestAuthorizer_Refresh(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"OK","data":{"token":"new-token"}}`)
	})

	token, err := a.Refresh(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, "new-token", token)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, AuthorizationsPath, gotPath)
	assert.Equal(t, "Bearer r1", gotAuth)
}

func TestAuthorizer_RefreshFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "rejected refresh token", status: http.StatusUnauthorized, body: `{"message":"refresh_token invalid"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "missing token", status: http.StatusCreated, body: `{"message":"OK","data":{}}`},
		{name: "non-json body", status: http.StatusOK, body: `token=abc`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			token, err := a.Refresh(context.Background(), "r1")

			assert.Error(t, err)
			assert.Empty(t, token)
		})
	}
}

func TestAuthorizer_RefreshRejectsEmptyToken(t *testing.T) {
	a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := a.Refresh(context.Background(), "")
	assert.Error(t, err)
}

func TestAuthorizer_Login(t *testing.T) {
	var got loginRequest
	a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, AuthorizationsPath, r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":"OK","data":{"token":"t1","refresh_token":"r1"}}`)
	})

	cred, err := a.Login(context.Background(), "13911111111", "246810")

	require.NoError(t, err)
	assert.Equal(t, &session.Credential{Token: "t1", RefreshToken: "r1"}, cred)
	assert.Equal(t, loginRequest{Mobile: "13911111111", Code: "246810"}, got)
}

func TestAuthorizer_LoginFailures(t *testing.T) {
	t.Run("bad code", func(t *testing.T) {
		a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"message":"Invalid code."}`)
		})

		_, err := a.Login(context.Background(), "13911111111", "000000")

		assert.ErrorIs(t, err, apiclient.ErrBadRequest)
	})

	t.Run("incomplete credential", func(t *testing.T) {
		a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"message":"OK","data":{"token":"t1"}}`)
		})

		_, err := a.Login(context.Background(), "13911111111", "246810")

		assert.Error(t, err)
	})

	t.Run("empty input", func(t *testing.T) {
		a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		_, err := a.Login(context.Background(), "", "246810")

		assert.Error(t, err)
	})
}

func TestAuthorizer_CanceledContext(t *testing.T) {
	a := newAuthorizer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Refresh(ctx, "r1")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = a.Login(ctx, "13911111111", "246810")
	assert.ErrorIs(t, err, context.Canceled)
}
