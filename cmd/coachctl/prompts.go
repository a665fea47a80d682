package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage coaching prompts (admin only)",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List coaching prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		prompts, err := c.ListPrompts(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range prompts {
			marker := "  "
			if p.IsActive {
				marker = successStyle.Render("* ")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s  %s\n", marker, labelStyle.Render(p.ID.String()), p.Name)
		}
		return nil
	},
}

var promptsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Add an inactive prompt from --text or --file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		text, _ := cmd.Flags().GetString("text")
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			text = string(data)
		}
		if text == "" {
			return errors.New("--text or --file is required")
		}

		prompt, err := c.CreatePrompt(cmd.Context(), args[0], text)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Created prompt "+prompt.ID.String()))
		return nil
	},
}

var promptsActivateCmd = &cobra.Command{
	Use:   "activate <prompt-id>",
	Short: "Make a prompt the one new conversations use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid prompt id %q", args[0])
		}
		if err := c.ActivatePrompt(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Activated "+id.String()))
		return nil
	},
}

func init() {
	promptsCreateCmd.Flags().String("text", "", "Prompt text")
	promptsCreateCmd.Flags().String("file", "", "Read the prompt text from a file")

	promptsCmd.AddCommand(promptsListCmd, promptsCreateCmd, promptsActivateCmd)
	rootCmd.AddCommand(promptsCmd)
}
