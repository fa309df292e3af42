package main

import (
	"fmt"

	"github.com/avvvet/chatbuddy/internal/apikey"
	"github.com/avvvet/chatbuddy/internal/db"
	"github.com/spf13/cobra"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage HTTP API keys",
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate <user-id>",
	Short: "Create or replace the API key of a user",
	Long:  `Prints a new key for the user. The key is stored hashed and cannot be shown again.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, closeDB, err := openKeys()
		if err != nil {
			return err
		}
		defer closeDB()

		key, err := keys.Generate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key for %s: %s\n", args[0], key)
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <user-id>",
	Short: "Delete the API key of a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, closeDB, err := openKeys()
		if err != nil {
			return err
		}
		defer closeDB()

		if err := keys.Revoke(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key for %s revoked\n", args[0])
		return nil
	},
}

func init() {
	apikeyCmd.AddCommand(apikeyGenerateCmd, apikeyRevokeCmd)
	rootCmd.AddCommand(apikeyCmd)
}

// openKeys opens only the database; key management needs no model
func openKeys() (*apikey.Manager, func(), error) {
	cfg, logger, err := setup()
	if err != nil {
		return nil, nil, err
	}

	d, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		d.Close()
		logger.Sync()
	}
	return apikey.NewManager(d,
		apikey.WithTTL(cfg.APIKeyTTL),
		apikey.WithRatePerMinute(cfg.APIRatePerMinute)), closeDB, nil
}
