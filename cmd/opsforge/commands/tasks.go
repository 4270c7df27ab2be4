package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTasksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect tracked execution tasks",
	}

	cmd.AddCommand(newTasksListCommand())
	cmd.AddCommand(newTasksShowCommand())

	return cmd
}

func newTasksListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			tasks, err := app.store.ListTasks(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(tasks)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNAME\tSTATUS\tCREATED\tCOMPLETED")
			for _, task := range tasks {
				completed := "-"
				if task.CompletedAt != nil {
					completed = task.CompletedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					task.ID, task.Type, task.Name, task.Status,
					task.CreatedAt.Format("2006-01-02 15:04:05"), completed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of tasks")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of tasks to skip")

	return cmd
}

func newTasksShowCommand() *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task with its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			task, err := app.store.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(task)
			}

			fmt.Printf("ID:      %s\n", task.ID)
			fmt.Printf("Type:    %s\n", task.Type)
			fmt.Printf("Name:    %s\n", task.Name)
			fmt.Printf("Status:  %s\n", task.Status)
			fmt.Printf("Targets: %s\n", task.TargetHosts)
			if task.Result != nil {
				fmt.Printf("Result:  %s\n", *task.Result)
			}
			if showLogs {
				var lines []string
				if err := json.Unmarshal([]byte(task.Logs), &lines); err == nil {
					fmt.Println("Logs:")
					for _, line := range lines {
						fmt.Printf("  %s\n", line)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showLogs, "logs", false, "include the captured transcript")

	return cmd
}
