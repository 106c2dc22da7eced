package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	appvolumecreate "github.com/runbox/runbox/internal/app/volumecreate"
)

type VolumeCreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	name        string
	archivePath string
}

// NewVolumeCreateCommand returns the volume create command.
func NewVolumeCreateCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *VolumeCreateCommand {
	c := &VolumeCreateCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("create", "Create a named volume, optionally seeded from a gzip tar archive.")
	c.Cmd.Arg("name", "Volume name.").Required().StringVar(&c.name)
	c.Cmd.Flag("from-archive", "Path to a gzip tar archive to seed the volume with.").StringVar(&c.archivePath)

	return c
}

func (c VolumeCreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c VolumeCreateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	var archive []byte
	if c.archivePath != "" {
		var err error
		archive, err = os.ReadFile(c.archivePath)
		if err != nil {
			return fmt.Errorf("could not read archive: %w", err)
		}
	}

	eng, err := newDockerEngine(logger, 0)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	svc, err := appvolumecreate.NewService(appvolumecreate.ServiceConfig{
		Engine: eng,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	if err := svc.Run(ctx, appvolumecreate.Request{Name: c.name, Archive: archive}); err != nil {
		return err
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Volume %q created\n", c.name)
	return nil
}
