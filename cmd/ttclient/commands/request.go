package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/ttnews/ttclient/internal/apiclient"
	"github.com/ttnews/ttclient/internal/app"
)

// ErrLoginRequired marks a command that failed because the session expired and
// could not be refreshed.
var ErrLoginRequired = errors.New("login required")

// requestCommand returns the 'request' subcommand for a single API call.
func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "Send an API request and print the decoded response",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON request body",
			},
			&cli.StringSliceFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "query parameter as key=value (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "request header as 'Name: value' (repeatable)",
			},
		},
		Action: requestAction,
	}
}

// getCommand returns the 'get' subcommand fetching several paths concurrently.
func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET one or more paths concurrently and print each response",
		ArgsUsage: "PATH...",
		Action:    getAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("expected METHOD and PATH, got %d arguments", cmd.NArg())
	}

	req, err := buildRequest(
		cmd.Args().Get(0),
		cmd.Args().Get(1),
		cmd.String("data"),
		cmd.StringSlice("query"),
		cmd.StringSlice("header"),
	)
	if err != nil {
		return err
	}

	application, _, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := application.Do(ctx, req)
	if err != nil {
		return loginRequired(application, describeFailure(err))
	}
	return printData(cmd.Root().Writer, resp.Data)
}

func getAction(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("expected at least one PATH")
	}

	application, _, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	w := cmd.Root().Writer
	var errs []error
	for _, res := range application.GetAll(ctx, paths) {
		if len(paths) > 1 {
			fmt.Fprintf(w, "==> %s <==\n", res.Path)
		}
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Path, describeFailure(res.Err)))
			continue
		}
		if err := printData(w, res.Response.Data); err != nil {
			return err
		}
	}
	return loginRequired(application, errors.Join(errs...))
}

// loginRequired marks err with ErrLoginRequired when the app was sent to the login route.
func loginRequired(application *app.App, err error) error {
	if err == nil || !application.Navigator().Redirected() {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLoginRequired, err)
}

// buildRequest assembles a request from command-line arguments.
func buildRequest(method, path, data string, query, headers []string) (*apiclient.Request, error) {
	method = strings.ToUpper(method)

	req := &apiclient.Request{Method: method, Path: path}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return nil, errors.New("--data is not valid JSON")
		}
		var err error
		req, err = apiclient.NewJSONRequest(method, path, json.RawMessage(data))
		if err != nil {
			return nil, err
		}
	}

	if len(query) > 0 {
		req.Query = url.Values{}
		for _, kv := range query {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid query parameter %q (expected key=value)", kv)
			}
			req.Query.Add(k, v)
		}
	}

	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q (expected 'Name: value')", h)
		}
		if req.Header == nil {
			req.Header = http.Header{}
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return req, nil
}

// printData writes a decoded body: JSON values indented with big integers kept
// as written, text bodies verbatim.
func printData(w io.Writer, data any) error {
	if text, ok := data.(string); ok {
		_, err := fmt.Fprintln(w, text)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// describeFailure adds the response body of an API error so the server's
// message is visible on the command line.
func describeFailure(err error) error {
	var herr *apiclient.HTTPError
	if !errors.As(err, &herr) || herr.Response == nil || len(herr.Response.Body) == 0 {
		return err
	}
	return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(herr.Response.Body)))
}
