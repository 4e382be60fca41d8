// Package cmd is the tgbotctl CLI command tree: serve the bot, and manage
// the whitelist from the command line without going through chat.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tgbotctl",
	Short: "Remote terminal controller over a chat-bot front end",
	Long: `tgbotctl exposes persistent tmux-backed shell sessions to an
authenticated Telegram chat: named tabs, periodic and prompt-triggered
output capture, command policy enforcement, file editing, and admin
credential rotation.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
}

// exitError carries the process exit code spec'd for configuration and
// multiplexer failures, distinct from the generic nonzero catch-all.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error       { return &exitError{code: 2, err: err} }
func driverUnavailable(err error) error { return &exitError{code: 3, err: err} }

func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	return 0
}
