package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"

	apphealth "github.com/runbox/runbox/internal/app/health"
	apprun "github.com/runbox/runbox/internal/app/run"
	appvolumecreate "github.com/runbox/runbox/internal/app/volumecreate"
	"github.com/runbox/runbox/internal/log"
	"github.com/runbox/runbox/internal/server"
)

type ServerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddress string
	execTimeout   time.Duration
	workDir       string
}

// NewServerCommand returns the server command.
func NewServerCommand(rootCmd *RootCommand, app *kingpin.Application) *ServerCommand {
	c := &ServerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("server", "Start the HTTP API server.")
	c.Cmd.Flag("listen-address", "Address to listen on.").Default(":8000").StringVar(&c.listenAddress)
	c.Cmd.Flag("exec-timeout", "Maximum duration of one container execution.").Default("5m").DurationVar(&c.execTimeout)
	c.Cmd.Flag("work-dir", "Directory for per-request workspaces (defaults to the system temp directory).").StringVar(&c.workDir)

	return c
}

func (c ServerCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	eng, err := newDockerEngine(logger, c.execTimeout)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	repo, err := newRepository(ctx, c.rootCmd.DBPath, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	runSvc, err := apprun.NewService(apprun.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		WorkDir:    c.workDir,
		Timeout:    c.execTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create run service: %w", err)
	}

	volumeSvc, err := appvolumecreate.NewService(appvolumecreate.ServiceConfig{
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create volume service: %w", err)
	}

	healthSvc, err := apphealth.NewService(apphealth.ServiceConfig{
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create health service: %w", err)
	}

	srv, err := server.New(server.Config{
		Runner:        runSvc,
		VolumeCreator: volumeSvc,
		HealthChecker: healthSvc,
		History:       repo,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:    c.listenAddress,
		Handler: srv.Handler(),
	}

	// Shut down gracefully when the context is cancelled (signal handling
	// lives in main).
	errCh := make(chan error, 1)
	go func() {
		logger.WithValues(log.Kv{"addr": c.listenAddress}).Infof("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		logger.Infof("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not shut down server: %w", err)
		}
		return nil
	}
}
