package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
)

type HealthcheckCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url     string
	timeout time.Duration
}

// NewHealthcheckCommand returns the healthcheck command. It probes a running
// server over HTTP, so it works as a container health check without any
// engine access.
func NewHealthcheckCommand(rootCmd *RootCommand, app *kingpin.Application) *HealthcheckCommand {
	c := &HealthcheckCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("healthcheck", "Probe a running server's health endpoint.")
	c.Cmd.Flag("url", "Health endpoint URL.").Default("http://127.0.0.1:8000/health").StringVar(&c.url)
	c.Cmd.Flag("timeout", "Probe timeout.").Default("5s").DurationVar(&c.timeout)

	return c
}

func (c HealthcheckCommand) Name() string { return c.Cmd.FullCommand() }

func (c HealthcheckCommand) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("invalid health URL: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server is unhealthy (status %d)", resp.StatusCode)
	}

	fmt.Fprintln(c.rootCmd.Stdout, "healthy")
	return nil
}
