package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest("put", "/app/v1_0/user/profile", `{"name":"ttnews"}`,
		[]string{"page=1", "per_page=10"}, []string{"X-Trace: abc"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/app/v1_0/user/profile", req.Path)
	assert.JSONEq(t, `{"name":"ttnews"}`, string(req.Body))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	assert.Equal(t, "1", req.Query.Get("page"))
	assert.Equal(t, "10", req.Query.Get("per_page"))
}

func TestBuildRequest_Invalid(t *testing.T) {
	_, err := buildRequest("POST", "/x", `{not json`, nil, nil)
	assert.Error(t, err)

	_, err = buildRequest("GET", "/x", "", []string{"novalue"}, nil)
	assert.Error(t, err)

	_, err = buildRequest("GET", "/x", "", nil, []string{"no-colon"})
	assert.Error(t, err)
}

func TestPrintData_KeepsBigIntegers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printData(&buf, map[string]any{"art_id": json.Number("1234567890123456789")}))
	assert.Contains(t, buf.String(), `"art_id": 1234567890123456789`)

	buf.Reset()
	require.NoError(t, printData(&buf, "<html>oops</html>"))
	assert.Equal(t, "<html>oops</html>\n", buf.String())
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(none)", maskToken(""))
	assert.Equal(t, "********", maskToken("short"))
	assert.Equal(t, "eyJhbGci...", maskToken("eyJhbGciOiJIUzI1NiJ9"))
}

func TestRequestCommand_EndToEnd(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer env-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"art_id":9007199254740993,"q":"` + r.URL.Query().Get("q") + `"}}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TTCLIENT_BASE_URL", srv.URL+"/")
	t.Setenv("TTCLIENT_AUTH__STORAGE", "env")
	t.Setenv("TTCLIENT_AUTH__TOKEN", "env-token")
	t.Setenv("TTCLIENT_AUTH__REFRESH_TOKEN", "env-refresh")

	var stdout, stderr bytes.Buffer
	cmd := rootCommand("test", "abc")
	cmd.Writer = &stdout
	cmd.ErrWriter = &stderr

	err := cmd.Run(context.Background(), []string{"ttclient", "request", "--query", "q=go", "GET", "/app/v1_0/articles"})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), `"art_id": 9007199254740993`)
	assert.Contains(t, stdout.String(), `"q": "go"`)
}

func TestGetCommand_ReportsFailures(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TTCLIENT_BASE_URL", srv.URL+"/")
	t.Setenv("TTCLIENT_AUTH__STORAGE", "memory")

	var stdout, stderr bytes.Buffer
	cmd := rootCommand("test", "abc")
	cmd.Writer = &stdout
	cmd.ErrWriter = &stderr

	err := cmd.Run(context.Background(), []string{"ttclient", "get", "/ok", "/broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, stdout.String(), "==> /ok <==")
	assert.Contains(t, stdout.String(), `"ok": true`)
	assert.Contains(t, stderr.String(), "server error")
}

func TestGetCommand_ExpiredSessionRequiresLogin(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TTCLIENT_BASE_URL", srv.URL+"/")
	t.Setenv("TTCLIENT_AUTH__STORAGE", "memory")

	var stdout, stderr bytes.Buffer
	cmd := rootCommand("test", "abc")
	cmd.Writer = &stdout
	cmd.ErrWriter = &stderr

	err := cmd.Run(context.Background(), []string{"ttclient", "get", "/app/v1_0/user"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.Contains(t, stderr.String(), "ttclient auth login")
}

func TestGetCommand_OtherFailuresDoNotRequireLogin(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TTCLIENT_BASE_URL", srv.URL+"/")
	t.Setenv("TTCLIENT_AUTH__STORAGE", "memory")

	var stdout, stderr bytes.Buffer
	cmd := rootCommand("test", "abc")
	cmd.Writer = &stdout
	cmd.ErrWriter = &stderr

	err := cmd.Run(context.Background(), []string{"ttclient", "get", "/app/v1_0/user"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLoginRequired)
}
