package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/api/client"
)

var (
	deployProject string
	deployName    string
	deployCPU     int
	deployMemory  int
	deployWait    bool
	deployWaitFor time.Duration
	listLimit     int
)

var deployCmd = &cobra.Command{
	Use:   "deploy <dir>",
	Short: "Deploy the files in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		files, err := collectSources(args[0])
		if err != nil {
			return err
		}
		name := deployName
		if name == "" {
			name = projectNameFromDir(args[0])
		}
		project := deployProject
		if project == "" {
			project = name
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		dep, err := client.Deploy(ctx, token, apiclient.DeployInput{
			ProjectID:   project,
			ProjectName: name,
			Files:       files,
			CPULimit:    deployCPU,
			MemoryLimit: deployMemory,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Deployment %s queued (%d files, subdomain %s)\n", dep.ID, len(files), dep.Subdomain)
		if !deployWait {
			return nil
		}

		waitCtx, cancelWait := context.WithTimeout(cmd.Context(), deployWaitFor)
		defer cancelWait()
		dep, err = client.WaitForDeployment(waitCtx, token, dep.ID, 2*time.Second)
		if err != nil {
			return fmt.Errorf("wait for deployment: %w", err)
		}
		printDeployment(out, dep)
		if dep.Status == "failed" {
			return fmt.Errorf("deployment failed: %s", dep.ErrorMessage)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <deployment-id>",
	Short: "Show a deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		dep, err := client.GetDeployment(ctx, token, args[0])
		if err != nil {
			return err
		}
		printDeployment(cmd.OutOrStdout(), dep)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List recent deployments of a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, token, err := session()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), flagTimeout)
		defer cancel()
		deps, err := client.ListDeployments(ctx, token, args[0], listLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tURL\tCREATED")
		for _, d := range deps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Status, d.DeploymentURL, d.CreatedAt.Local().Format(time.DateTime))
		}
		return w.Flush()
	},
}

func printDeployment(out io.Writer, d apiclient.Deployment) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", d.ID)
	fmt.Fprintf(w, "Project:\t%s (%s)\n", d.ProjectName, d.ProjectID)
	fmt.Fprintf(w, "Status:\t%s\n", d.Status)
	if d.DeploymentURL != "" {
		fmt.Fprintf(w, "URL:\t%s\n", d.DeploymentURL)
	}
	if d.Framework != "" {
		fmt.Fprintf(w, "Framework:\t%s\n", d.Framework)
	}
	fmt.Fprintf(w, "Limits:\t%dm CPU, %d MB\n", d.CPULimit, d.MemoryLimit)
	if d.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", d.ErrorMessage)
	}
	_ = w.Flush()
}

func init() {
	deployCmd.Flags().StringVar(&deployProject, "project", "", "project ID (defaults to the project name)")
	deployCmd.Flags().StringVar(&deployName, "name", "", "project name (defaults to the directory name)")
	deployCmd.Flags().IntVar(&deployCPU, "cpu", 0, "CPU limit in millicores")
	deployCmd.Flags().IntVar(&deployMemory, "memory", 0, "memory limit in MB")
	deployCmd.Flags().BoolVar(&deployWait, "wait", false, "wait until the deployment settles")
	deployCmd.Flags().DurationVar(&deployWaitFor, "wait-timeout", 15*time.Minute, "how long --wait polls")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "number of deployments")

	rootCmd.AddCommand(deployCmd, statusCmd, listCmd)
}
