package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newProvisionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision cloud instances through staged workflows",
	}

	cmd.AddCommand(newProvisionCreateCommand())
	cmd.AddCommand(newProvisionListCommand())
	cmd.AddCommand(newProvisionStatusCommand())
	cmd.AddCommand(newProvisionLogsCommand())

	return cmd
}

func newProvisionCreateCommand() *cobra.Command {
	var (
		name         string
		description  string
		params       map[string]string
		paramsPath   string
		playbookPath string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and start a provisioning workflow",
		Long: `Create a workflow that validates the parameters, creates a cloud
instance, waits for it to become reachable over SSH, registers it as a
managed host, and optionally runs a deployment playbook on it.

Required parameters: Region, Zone, ImageId, InstanceType, Password.
When a post-creation stage fails the created instance is terminated and
the registered host removed again.`,
		Example: `  opsforge provision create --name web-1 \
    -p Region=fsn1 -p Zone=fsn1-dc14 \
    -p ImageId=ubuntu-22.04 -p InstanceType=cx22 \
    -p Password='S3cret!pass' \
    --playbook deploy.yml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			orch, err := app.orchestrator()
			if err != nil {
				return err
			}

			wfParams := map[string]any{}
			if paramsPath != "" {
				blob, err := os.ReadFile(paramsPath)
				if err != nil {
					return fmt.Errorf("failed to read parameter file: %w", err)
				}
				if err := yaml.Unmarshal(blob, &wfParams); err != nil {
					return fmt.Errorf("failed to parse parameter file: %w", err)
				}
			}
			// -p flags override file-provided values
			for k, v := range params {
				wfParams[k] = v
			}
			if _, ok := wfParams["Region"]; !ok && app.cfg.Cloud.DefaultRegion != "" {
				wfParams["Region"] = app.cfg.Cloud.DefaultRegion
			}
			if playbookPath != "" {
				content, err := os.ReadFile(playbookPath)
				if err != nil {
					return fmt.Errorf("failed to read playbook: %w", err)
				}
				wfParams["PlaybookContent"] = string(content)
			}

			wf, err := orch.CreateWorkflow(cmd.Context(), name, description, wfParams)
			if err != nil {
				return err
			}

			h, err := orch.StartWorkflow(cmd.Context(), wf.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Workflow %s started\n", wf.ID)

			// The run lives in this process; returning before it
			// reaches a terminal status would strand the instance
			// with no rollback.
			if err := h.Wait(cmd.Context()); err != nil {
				return fmt.Errorf("workflow failed: %w", err)
			}
			fmt.Println("Workflow completed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "workflow name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "workflow description")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "provisioning parameter (key=value)")
	cmd.Flags().StringVar(&paramsPath, "params-file", "", "YAML file with provisioning parameters")
	cmd.Flags().StringVar(&playbookPath, "playbook", "", "deployment playbook to run on the new instance")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newProvisionListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			workflows, err := app.store.ListWorkflows(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(workflows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSTAGE\tCREATED")
			for _, wf := range workflows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					wf.ID, wf.Name, wf.Status, wf.CurrentStage,
					wf.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of workflows")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of workflows to skip")

	return cmd
}

func newProvisionStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			wf, err := app.store.GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(wf)
			}

			fmt.Printf("ID:          %s\n", wf.ID)
			fmt.Printf("Name:        %s\n", wf.Name)
			fmt.Printf("Status:      %s\n", wf.Status)
			fmt.Printf("Stage:       %s\n", wf.CurrentStage)
			if wf.Description != "" {
				fmt.Printf("Description: %s\n", wf.Description)
			}

			// render the context without the password
			var wfCtx map[string]any
			if err := json.Unmarshal([]byte(wf.Context), &wfCtx); err == nil {
				delete(wfCtx, "Password")
				pretty, _ := json.MarshalIndent(wfCtx, "", "  ")
				fmt.Printf("Context:     %s\n", pretty)
			}
			return nil
		},
	}
}

func newProvisionLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <id>",
		Short: "Show the audit log of one workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			logs, err := app.store.ListWorkflowLogs(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(logs)
			}

			for _, entry := range logs {
				fmt.Printf("%s [%s] %s: %s\n",
					entry.Timestamp.Format("2006-01-02 15:04:05"),
					strings.ToUpper(string(entry.Status)), entry.Stage, entry.Message)
				if entry.Detail != nil && *entry.Detail != "" {
					for _, line := range strings.Split(*entry.Detail, "\n") {
						fmt.Printf("    %s\n", line)
					}
				}
			}
			return nil
		},
	}
}
