package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coachline/coachline/internal/auth"
)

var setPasswordValue string

var setPasswordCmd = &cobra.Command{
	Use:   "set-password <email>",
	Short: "Replace a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := context.Background()
		user, err := e.users.GetByEmail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to find %s: %w", args[0], err)
		}

		hash, err := auth.HashPassword(setPasswordValue)
		if err != nil {
			return err
		}
		if err := e.users.SetPassword(ctx, user.ID, hash); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Successfully updated password for %s\n", user.Email)
		return nil
	},
}
