// Command coachctl is a terminal client for coachline: it logs in, runs voice
// or typed coaching conversations and browses past sessions.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coachline/coachline/internal/client"
	"github.com/coachline/coachline/internal/config"
	"github.com/coachline/coachline/internal/logging"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:           "coachctl",
	Short:         "Talk to your coach from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Coachline server URL")
	rootCmd.PersistentFlags().String("token-file", defaultTokenFile(), "Where the access token is kept")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log transport and state details to stderr")

	// COACHLINE_SERVER, COACHLINE_TOKEN_FILE and COACHLINE_VERBOSE override the defaults
	settings.SetEnvPrefix("coachline")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	_ = settings.BindPFlags(rootCmd.PersistentFlags())
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".coachline-token"
	}
	return filepath.Join(home, ".coachline", "token")
}

// newClient returns an API client carrying the saved token, if any
func newClient() *client.Client {
	c := client.New(settings.GetString("server"))
	if token, err := os.ReadFile(settings.GetString("token-file")); err == nil {
		c.SetToken(strings.TrimSpace(string(token)))
	}
	return c
}

// requireLogin is newClient for commands that cannot run anonymously
func requireLogin() (*client.Client, error) {
	c := newClient()
	if c.Token() == "" {
		return nil, errors.New("not logged in, run `coachctl login` first")
	}
	return c, nil
}

func saveToken(token string) error {
	path := settings.GetString("token-file")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

func newLogger() *logrus.Logger {
	level := "warn"
	if settings.GetBool("verbose") {
		level = "debug"
	}
	return logging.New(config.LogConfig{Level: level})
}
