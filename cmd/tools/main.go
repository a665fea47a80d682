// Command tools holds operator utilities that work directly on the database.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coachline/coachline/internal/auth"
	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/database"
	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/repository"
	"github.com/coachline/coachline/internal/repository/postgres"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tools",
	Short: "Coachline operator tools",
}

// env is what every subcommand needs: the loaded config and the user table
type env struct {
	cfg   *config.Config
	users repository.UserRepository
	close func()
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := database.NewConnection(context.Background(), cfg.Database)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:   cfg,
		users: postgres.NewUserRepository(db.DB),
		close: func() { db.Close() },
	}, nil
}

var (
	createUserEmail    string
	createUserPassword string
	createUserName     string
	createUserRole     string
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user with a bcrypt password",
	RunE: func(cmd *cobra.Command, args []string) error {
		if createUserRole != models.RoleUser && createUserRole != models.RoleAdmin {
			return fmt.Errorf("role must be %q or %q", models.RoleUser, models.RoleAdmin)
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		hash, err := auth.HashPassword(createUserPassword)
		if err != nil {
			return err
		}
		user := &models.User{
			Email:        strings.ToLower(strings.TrimSpace(createUserEmail)),
			DisplayName:  createUserName,
			PasswordHash: hash,
			Role:         createUserRole,
		}
		if err := e.users.Create(context.Background(), user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Created user:\n")
		fmt.Fprintf(out, "   Email: %s\n", user.Email)
		fmt.Fprintf(out, "   Role: %s\n", user.Role)
		fmt.Fprintf(out, "   ID: %s\n", user.ID)
		return nil
	},
}

var grantAdminCmd = &cobra.Command{
	Use:   "grant-admin <email>",
	Short: "Give an existing user the admin role",
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
		if err := e.users.SetRole(ctx, user.ID, models.RoleAdmin); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", user.Email)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Mint an access token for a user (development only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		user, err := e.users.GetByEmail(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to find %s: %w", args[0], err)
		}
		token, err := auth.NewService(e.users, e.cfg.Auth, nil).IssueToken(user)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createUserCmd, grantAdminCmd, tokenCmd, setPasswordCmd)

	createUserCmd.Flags().StringVar(&createUserEmail, "email", "", "User email")
	createUserCmd.Flags().StringVar(&createUserPassword, "password", "", "User password")
	createUserCmd.Flags().StringVar(&createUserName, "name", "", "Display name")
	createUserCmd.Flags().StringVar(&createUserRole, "role", models.RoleUser, "User role (user, admin)")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")

	setPasswordCmd.Flags().StringVar(&setPasswordValue, "password", "", "New password")
	_ = setPasswordCmd.MarkFlagRequired("password")
}
