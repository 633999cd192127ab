package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the API URL and access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagAPI != "" {
			cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(flagAPI), "/")
		}
		token := strings.TrimSpace(flagToken)
		if token == "" {
			fmt.Fprint(cmd.OutOrStdout(), "Access token: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			token = strings.TrimSpace(string(raw))
		}
		if token == "" {
			return errors.New("access token required")
		}
		cfg.AccessToken = token
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s\n", cfg.APIBaseURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
