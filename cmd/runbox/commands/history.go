package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/runbox/runbox/pkg/apiv1"
)

type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	limit int
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List past executions as JSON.")
	c.Cmd.Flag("limit", "Maximum number of executions to list (0 lists everything).").Default("20").IntVar(&c.limit)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	repo, err := newRepository(ctx, c.rootCmd.DBPath, c.rootCmd.Logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	records, err := repo.ListExecutions(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("could not list executions: %w", err)
	}

	executions := make([]apiv1.Execution, 0, len(records))
	for _, r := range records {
		executions = append(executions, apiv1.NewExecution(r))
	}

	enc := json.NewEncoder(c.rootCmd.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(executions); err != nil {
		return fmt.Errorf("could not encode executions: %w", err)
	}

	return nil
}
