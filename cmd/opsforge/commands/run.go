package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var (
		hostIDs []string
		group   string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "run <command>",
		Short: "Run an ad-hoc command on managed hosts",
		Long: `Run a single shell command over SSH against the selected hosts in
parallel. Each host lands in exactly one result bucket: success, failed,
or unreachable. Every per-host outcome is recorded in the command log.`,
		Example: `  # Run on two hosts by id
  opsforge run "uptime" -H 1 -H 2

  # Run on a whole group
  opsforge run "systemctl restart nginx" -g webservers

  # Run everywhere
  opsforge run "uname -a" --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			hosts, err := app.resolveTargets(cmd.Context(), hostIDs, group, all)
			if err != nil {
				return err
			}

			result, err := app.runner.ExecuteCommand(cmd.Context(), args[0], hosts)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			for addr, out := range result.Success {
				fmt.Printf("%s | SUCCESS | rc=%d\n%s", addr, out.RC, out.Stdout)
			}
			for addr, f := range result.Failed {
				fmt.Printf("%s | FAILED | rc=%d\n%s\n", addr, f.RC, f.Msg)
			}
			for addr, u := range result.Unreachable {
				fmt.Printf("%s | UNREACHABLE\n%s\n", addr, u.Msg)
			}
			if len(result.Failed) > 0 || len(result.Unreachable) > 0 {
				return fmt.Errorf("%d host(s) failed, %d unreachable",
					len(result.Failed), len(result.Unreachable))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&hostIDs, "host", "H", nil, "host id or address (repeatable)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "target all hosts in a group")
	cmd.Flags().BoolVar(&all, "all", false, "target every registered host")

	return cmd
}
