package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and keep the access token for later commands",
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	c := newClient()
	user, token, err := c.Login(cmd.Context(), email, password)
	if err != nil {
		return err
	}
	if err := saveToken(token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	name := user.DisplayName
	if name == "" {
		name = user.Email
	}
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Logged in as "+name))
	return nil
}
