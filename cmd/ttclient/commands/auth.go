package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// authCommand returns the 'auth' subcommand for managing the session.
func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the signed-in session",
		Commands: []*cli.Command{
			authLoginCommand(),
			authLogoutCommand(),
			authRefreshCommand(),
			authStatusCommand(),
		},
	}
}

// authLoginCommand returns the 'auth login' subcommand.
func authLoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with a mobile number and SMS code and save the credential",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "mobile",
				Aliases:  []string{"m"},
				Usage:    "mobile number",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "code",
				Usage: "SMS verification code (prompted for when omitted)",
			},
		},
		Action: authLoginAction,
	}
}

// authLogoutCommand returns the 'auth logout' subcommand.
func authLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out and clear the saved credential",
		Action: authLogoutAction,
	}
}

// authRefreshCommand returns the 'auth refresh' subcommand.
func authRefreshCommand() *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Exchange the refresh token for a new access token",
		Action: authRefreshAction,
	}
}

// authStatusCommand returns the 'auth status' subcommand.
func authStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show whether a credential is saved",
		Action: authStatusAction,
	}
}

func authLoginAction(ctx context.Context, cmd *cli.Command) error {
	application, cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	code := cmd.String("code")
	if code == "" {
		code, err = readSecureInput(ctx, cmd, "Enter SMS code: ")
		if err != nil {
			return err
		}
	}
	if code == "" {
		return fmt.Errorf("verification code cannot be empty")
	}

	if err := application.Login(ctx, cmd.String("mobile"), code); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	w := cmd.Root().Writer
	fmt.Fprintln(w, "=== Login Successful ===")
	fmt.Fprintf(w, "Credential saved to %s storage\n", cfg.Auth.Storage)
	return nil
}

func authLogoutAction(ctx context.Context, cmd *cli.Command) error {
	application, cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := application.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	w := cmd.Root().Writer
	fmt.Fprintln(w, "=== Logout Successful ===")
	fmt.Fprintf(w, "Credential cleared from %s storage\n", cfg.Auth.Storage)
	return nil
}

func authRefreshAction(ctx context.Context, cmd *cli.Command) error {
	application, _, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := application.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "Access token refreshed: %s\n", maskToken(application.Session().User().Token))
	return nil
}

func authStatusAction(ctx context.Context, cmd *cli.Command) error {
	application, cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	w := cmd.Root().Writer
	user := application.Session().User()
	if !user.HasToken() {
		fmt.Fprintf(w, "Not signed in (storage: %s)\n", cfg.Auth.Storage)
		return nil
	}

	fmt.Fprintf(w, "Signed in to %s (storage: %s)\n", cfg.BaseURL, cfg.Auth.Storage)
	fmt.Fprintf(w, "  token:         %s\n", maskToken(user.Token))
	fmt.Fprintf(w, "  refresh token: %s\n", maskToken(user.RefreshToken))
	return nil
}

// maskToken keeps the first characters of a token for identification.
func maskToken(token string) string {
	const visible = 8
	if token == "" {
		return "(none)"
	}
	if len(token) <= visible {
		return "********"
	}
	return token[:visible] + "..."
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, cmd *cli.Command, prompt string) (string, error) {
	w := cmd.Root().ErrWriter
	fmt.Fprint(w, prompt)
	defer fmt.Fprintln(w)

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
