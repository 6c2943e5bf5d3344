package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/ttnews/ttclient/internal/app"
)

// loadConfig loads the config with explicitly set flags taking precedence over
// the file and environment.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if cmd.IsSet(flag) {
			overrides[key] = cmd.String(flag)
		}
	}
	return app.LoadConfig(path, overrides, environ)
}
