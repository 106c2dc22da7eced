package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"

	apprun "github.com/runbox/runbox/internal/app/run"
	storageio "github.com/runbox/runbox/internal/storage/io"
	"github.com/runbox/runbox/pkg/apiv1"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	requestFile string
	execTimeout time.Duration
	workDir     string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a single container from a YAML request file and print the result as JSON.")
	c.Cmd.Arg("request-file", "Path to the YAML request file.").Required().StringVar(&c.requestFile)
	c.Cmd.Flag("exec-timeout", "Maximum duration of the container execution.").Default("5m").DurationVar(&c.execTimeout)
	c.Cmd.Flag("work-dir", "Directory for the request workspace (defaults to the system temp directory).").StringVar(&c.workDir)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	abs, err := filepath.Abs(c.requestFile)
	if err != nil {
		return fmt.Errorf("invalid request file path: %w", err)
	}

	loader := storageio.NewRequestYAMLRepository(os.DirFS(filepath.Dir(abs)))
	req, err := loader.GetRequest(ctx, filepath.Base(abs))
	if err != nil {
		return fmt.Errorf("could not load request: %w", err)
	}

	eng, err := newDockerEngine(logger, c.execTimeout)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	repo, err := newRepository(ctx, c.rootCmd.DBPath, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := apprun.NewService(apprun.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		WorkDir:    c.workDir,
		Timeout:    c.execTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	result, err := svc.Run(ctx, *req)
	if err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	enc := json.NewEncoder(c.rootCmd.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(apiv1.NewRunResponse(result)); err != nil {
		return fmt.Errorf("could not encode result: %w", err)
	}

	return nil
}
