package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/api/client"
)

var (
	logsRuntime bool
	logsTail    int
)

type lifecycleFunc func(c *apiclient.Client, ctx context.Context, token, id string) (apiclient.Deployment, error)

func lifecycleCommand(use, short, verb string, op lifecycleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <deployment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, token, err := session()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
			defer cancel()
			dep, err := op(client, ctx, token, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deployment %s %s (status %s)\n", dep.ID, verb, dep.Status)
			return nil
		},
	}
}

var healthCmd = &cobra.Command{
	Use:   "health <deployment-id>",
	Short: "Show container status and uptime",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		health, err := client.DeploymentHealth(ctx, token, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (up %ds)\n", health.Status, health.Uptime)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <deployment-id>",
	Short: "Print build logs, or container logs with --runtime",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		out := cmd.OutOrStdout()
		if logsRuntime {
			lines, err := client.RuntimeLogs(ctx, token, args[0], logsTail)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		}
		entries, err := client.BuildLogs(ctx, token, args[0], logsTail)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(out, "%s [%s] %s\n", e.CreatedAt.Local().Format("15:04:05"), e.Stream, e.Message)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVar(&logsRuntime, "runtime", false, "show container output instead of build logs")
	logsCmd.Flags().IntVar(&logsTail, "tail", 100, "number of lines")

	rootCmd.AddCommand(
		lifecycleCommand("stop", "Stop a running deployment", "stopped", (*apiclient.Client).StopDeployment),
		lifecycleCommand("restart", "Restart a deployment", "restarted", (*apiclient.Client).RestartDeployment),
		lifecycleCommand("remove", "Remove a deployment and free its subdomain", "removed", (*apiclient.Client).DeleteDeployment),
		healthCmd,
		logsCmd,
	)
}
