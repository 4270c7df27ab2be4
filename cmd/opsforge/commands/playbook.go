package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opsforge/opsforge/pkg/stores"
)

func newPlaybookCommand() *cobra.Command {
	var (
		hostIDs []string
		group   string
		all     bool
		async   bool
		name    string
	)

	cmd := &cobra.Command{
		Use:   "playbook <file>",
		Short: "Run an automation playbook on managed hosts",
		Long: `Run a playbook through the configured interpreter against the selected
hosts. A generated inventory carries each host's connection settings.

The run is tracked as a task either way; with --async the command prints
the task id up front and stays quiet until the run finishes, leaving the
result on the task row instead of the terminal.`,
		Example: `  # Run and stream the transcript
  opsforge playbook deploy.yml -g webservers

  # Quiet run, inspect the outcome with "opsforge tasks show"
  opsforge playbook deploy.yml --all --async`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read playbook: %w", err)
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			hosts, err := app.resolveTargets(cmd.Context(), hostIDs, group, all)
			if err != nil {
				return err
			}

			if name == "" {
				name = args[0]
			}
			task, err := createPlaybookTask(cmd, app, name, hosts)
			if err != nil {
				return err
			}

			h, err := app.runner.ExecuteScriptAsync(cmd.Context(), task.ID, string(content), hosts,
				app.cfg.Orchestrator.DeployTimeout.Std())
			if err != nil {
				return err
			}

			if async {
				fmt.Printf("Task %s started\n", task.ID)
				// The goroutine dies with this process, so the run
				// must reach its terminal task status before RunE
				// returns.
				if _, runErr := h.Wait(cmd.Context()); runErr != nil {
					return fmt.Errorf("playbook run failed: %w", runErr)
				}
				return nil
			}

			result, runErr := h.Wait(cmd.Context())
			if runErr != nil {
				return fmt.Errorf("playbook run failed: %w", runErr)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			for _, line := range result.Logs {
				fmt.Println(line)
			}
			if !result.Success {
				return fmt.Errorf("playbook failed with return code %d", result.ReturnCode)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&hostIDs, "host", "H", nil, "host id or address (repeatable)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "target all hosts in a group")
	cmd.Flags().BoolVar(&all, "all", false, "target every registered host")
	cmd.Flags().BoolVar(&async, "async", false, "print only the task id, leave the result on the task row")
	cmd.Flags().StringVarP(&name, "name", "n", "", "task name (defaults to the playbook file)")

	return cmd
}

func createPlaybookTask(cmd *cobra.Command, app *app, name string, hosts []*stores.Host) (*stores.Task, error) {
	ids := make([]int64, 0, len(hosts))
	for _, h := range hosts {
		ids = append(ids, h.ID)
	}
	targets, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	task := &stores.Task{
		ID:          uuid.NewString(),
		Type:        "playbook",
		Name:        name,
		Status:      stores.TaskStatusPending,
		TargetHosts: string(targets),
		Params:      "{}",
		Logs:        "[]",
	}
	if err := app.store.CreateTask(cmd.Context(), task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}
