package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pvarki/takbackend/internal/services"
)

var tokenCmd = &cobra.Command{
	Use:   "token [owner-id]",
	Short: "Mint a bearer token for an owner",
	Long:  "takctl token <owner-id> [--ttl 24h]\n\nSigns with JWT_SECRET, so it only works where the API secret is known.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		token, err := services.NewTokenService([]byte(secret)).Issue(args[0], ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
}
