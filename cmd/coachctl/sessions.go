package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/coachline/coachline/internal/lifecycle"
	"github.com/coachline/coachline/internal/models"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Browse past coaching sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		sessions, err := lifecycle.NewManager(c).GetUserSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No sessions yet"))
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintln(cmd.OutOrStdout(), sessionLine(s))
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		m := lifecycle.NewManager(c)
		session, err := m.GetSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		messages, err := m.GetSessionMessages(cmd.Context(), id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sessionLine(session))
		fmt.Fprint(out, renderSummary(session))
		for _, msg := range messages {
			fmt.Fprintf(out, "%s %s\n", senderLabel(msg.Sender), msg.Content)
		}
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Generate the summary of a finished session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		session, err := lifecycle.NewManager(c).GenerateSummary(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(session))
		return nil
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate <session-id>",
	Short: "Rate a session from 1 to 5",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireLogin()
		if err != nil {
			return err
		}
		id, err := parseSessionID(args[0])
		if err != nil {
			return err
		}
		rating, _ := cmd.Flags().GetInt("rating")
		feedback, _ := cmd.Flags().GetStringSlice("feedback")

		session, err := lifecycle.NewManager(c).UpdateSessionRating(cmd.Context(), id, rating, feedback)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Rated "+stars(session.Rating)))
		return nil
	},
}

func init() {
	rateCmd.Flags().Int("rating", 0, "Rating from 1 to 5")
	rateCmd.Flags().StringSlice("feedback", nil, "Feedback tags, e.g. helpful,motivating")
	_ = rateCmd.MarkFlagRequired("rating")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd, summarizeCmd, rateCmd)
}

func parseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session id %q", raw)
	}
	return id, nil
}

func sessionLine(s *models.Session) string {
	parts := []string{
		labelStyle.Render(s.ID.String()),
		s.StartedAt.Local().Format("2006-01-02 15:04"),
		string(s.Status),
	}
	if s.DurationSeconds != nil {
		parts = append(parts, (time.Duration(*s.DurationSeconds) * time.Second).String())
	}
	if s.Rating != nil {
		parts = append(parts, stars(s.Rating))
	}
	return strings.Join(parts, "  ")
}

func stars(rating *int) string {
	if rating == nil {
		return ""
	}
	return strings.Repeat("★", *rating) + strings.Repeat("☆", 5-*rating)
}

// renderSummary prints nothing for a session that has not been summarized
func renderSummary(s *models.Session) string {
	if s == nil || s.Summary == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(labelStyle.Render("Summary") + "\n" + *s.Summary + "\n")
	writeList(&b, "Goals", s.MainGoals)
	writeList(&b, "Topics", s.TopicsDiscussed)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(labelStyle.Render(title) + "\n")
	for i, item := range items {
		b.WriteString("  " + strconv.Itoa(i+1) + ". " + item + "\n")
	}
}
