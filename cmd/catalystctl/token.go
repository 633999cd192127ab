package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	jwtpkg "github.com/Simply-U-Promotions/project-catalyst-sub000/pkg/jwt"
)

var (
	tokenUser string
	tokenTTL  time.Duration
)

// tokenCmd mints a bearer token locally. It needs the server's JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token with the server secret (JWT_SECRET)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("JWT_SECRET must be set to mint tokens")
		}
		token, err := jwtpkg.NewSigner(secret).Issue(tokenUser, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID to embed")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
