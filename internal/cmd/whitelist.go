package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loppo-llc/tgbotctl/internal/auth"
	"github.com/loppo-llc/tgbotctl/internal/config"
)

var (
	whitelistServerIP  string
	whitelistExpiresAt string
	whitelistAdmin     bool
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage the auth whitelist directly, bypassing chat",
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <user_id> <access_key>",
	Short: "Add or replace a whitelist entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runWhitelistAdd,
}

var whitelistRevokeCmd = &cobra.Command{
	Use:   "revoke <user_id>",
	Short: "Remove a whitelist entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhitelistRevoke,
}

var whitelistRotateCmd = &cobra.Command{
	Use:   "rotate <user_id> <new_key>",
	Short: "Rotate an existing entry's access key",
	Args:  cobra.ExactArgs(2),
	RunE:  runWhitelistRotate,
}

func init() {
	whitelistAddCmd.Flags().StringVar(&whitelistServerIP, "server-ip", "", "pin this entry to a single source IP")
	whitelistAddCmd.Flags().StringVar(&whitelistExpiresAt, "expires-at", "", "RFC3339 expiry")
	whitelistAddCmd.Flags().BoolVar(&whitelistAdmin, "admin", false, "grant admin credential-rotation privileges")

	whitelistCmd.AddCommand(whitelistAddCmd, whitelistRevokeCmd, whitelistRotateCmd)
	rootCmd.AddCommand(whitelistCmd)
}

func openWhitelist() (*auth.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configError(fmt.Errorf("whitelist: %w", err))
	}
	mgr := auth.New(cfg.Paths.WhitelistStatePath, auth.Config{
		MaxFailures:          cfg.AuthConfig.MaxFailures,
		FailureWindowSeconds: cfg.AuthConfig.FailureWindowSeconds,
		LockoutSeconds:       cfg.AuthConfig.LockoutSeconds,
	})
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("whitelist: load: %w", err)
	}
	mgr.Seed(seedEntries(cfg.WhitelistKeys))
	return mgr, nil
}

func runWhitelistAdd(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("whitelist: invalid user_id: %w", err)
	}
	mgr, err := openWhitelist()
	if err != nil {
		return err
	}
	expiresAt, err := config.ParseExpiresAt(whitelistExpiresAt)
	if err != nil {
		return configError(err)
	}
	if err := mgr.UpdateKey(userID, args[1], expiresAt); err != nil {
		return fmt.Errorf("whitelist: add: %w", err)
	}
	if whitelistServerIP != "" || whitelistAdmin {
		if err := mgr.SetEntryFlags(userID, whitelistServerIP, whitelistAdmin); err != nil {
			return fmt.Errorf("whitelist: set flags: %w", err)
		}
	}
	fmt.Printf("added whitelist entry for user %d\n", userID)
	return nil
}

func runWhitelistRevoke(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("whitelist: invalid user_id: %w", err)
	}
	mgr, err := openWhitelist()
	if err != nil {
		return err
	}
	if err := mgr.RevokeKey(userID); err != nil {
		return fmt.Errorf("whitelist: revoke: %w", err)
	}
	fmt.Printf("revoked whitelist entry for user %d\n", userID)
	return nil
}

func runWhitelistRotate(cmd *cobra.Command, args []string) error {
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("whitelist: invalid user_id: %w", err)
	}
	mgr, err := openWhitelist()
	if err != nil {
		return err
	}
	entry, ok := mgr.Get(userID)
	if !ok {
		return fmt.Errorf("whitelist: unknown user %d", userID)
	}
	if err := mgr.UpdateKey(userID, args[1], entry.ExpiresAt); err != nil {
		return fmt.Errorf("whitelist: rotate: %w", err)
	}
	fmt.Printf("rotated access key for user %d\n", userID)
	return nil
}
