package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opsforge/opsforge/pkg/inventory"
	"github.com/opsforge/opsforge/pkg/stores"
)

func newHostsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Manage the host inventory",
	}

	cmd.AddCommand(newHostsAddCommand())
	cmd.AddCommand(newHostsListCommand())
	cmd.AddCommand(newHostsRemoveCommand())
	cmd.AddCommand(newHostsPingCommand())

	return cmd
}

func newHostsAddCommand() *cobra.Command {
	var (
		user     string
		port     int
		password string
		keyPath  string
		group    string
		comment  string
	)

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Register a host",
		Example: `  # Password authentication
  opsforge hosts add 203.0.113.7 --user root --password s3cret

  # Key authentication
  opsforge hosts add 203.0.113.8 --user ubuntu --key ~/.ssh/id_ed25519`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" && keyPath == "" {
				return fmt.Errorf("one of --password or --key is required")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			host := &stores.Host{
				Address:    args[0],
				Username:   user,
				Port:       port,
				GroupName:  group,
				Comment:    comment,
				Status:     stores.HostStatusUnknown,
				AuthMethod: stores.AuthMethodPassword,
				Password:   password,
			}
			if keyPath != "" {
				host.AuthMethod = stores.AuthMethodKey
				host.PrivateKeyPath = keyPath
				host.Password = ""
			}

			if err := app.store.CreateHost(cmd.Context(), host); err != nil {
				return err
			}
			fmt.Printf("Host %d registered (%s)\n", host.ID, host.Address)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "root", "SSH username")
	cmd.Flags().IntVarP(&port, "port", "p", 22, "SSH port")
	cmd.Flags().StringVar(&password, "password", "", "SSH password")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key path")
	cmd.Flags().StringVarP(&group, "group", "g", inventory.DefaultGroup, "inventory group")
	cmd.Flags().StringVar(&comment, "comment", "", "free-form comment")

	return cmd
}

func newHostsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			hosts, err := app.store.ListHosts(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(hosts)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tADDRESS\tUSER\tPORT\tAUTH\tGROUP\tSTATUS\tCOMMENT")
			for _, h := range hosts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					h.ID, h.Address, h.Username, h.Port, h.AuthMethod, h.GroupName, h.Status, h.Comment)
			}
			return w.Flush()
		},
	}
}

func newHostsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a host",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid host id %q", args[0])
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.DeleteHost(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Printf("Host %d removed\n", id)
			return nil
		},
	}
}

func newHostsPingCommand() *cobra.Command {
	var (
		hostIDs []string
		group   string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check SSH reachability and update host status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			hosts, err := app.resolveTargets(cmd.Context(), hostIDs, group, all)
			if err != nil {
				return err
			}

			statuses, err := app.runner.Ping(cmd.Context(), hosts)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(statuses)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tADDRESS\tSTATUS")
			for _, h := range hosts {
				fmt.Fprintf(w, "%d\t%s\t%s\n", h.ID, h.Address, statuses[h.ID])
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVarP(&hostIDs, "host", "H", nil, "host id or address (repeatable)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "target all hosts in a group")
	cmd.Flags().BoolVar(&all, "all", false, "target every registered host")

	return cmd
}
