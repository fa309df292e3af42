package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/avvvet/chatbuddy/internal/audit"
	"github.com/avvvet/chatbuddy/internal/db"
	"github.com/spf13/cobra"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the unmatched query and API call logs",
}

var auditUnmatchedCmd = &cobra.Command{
	Use:   "unmatched",
	Short: "List questions the bot could not answer, newest first",
	Long: `Lists queries that fell below the confidence threshold or had no
answer in the catalog. Useful for deciding which intents to add next.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openAudit()
		if err != nil {
			return err
		}
		defer closeDB()
		return printUnmatched(cmd.Context(), store, auditLimit, cmd.OutOrStdout())
	},
}

var auditSessionsCmd = &cobra.Command{
	Use:   "sessions <user-id>",
	Short: "List the HTTP API calls of a user, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openAudit()
		if err != nil {
			return err
		}
		defer closeDB()
		return printAPISessions(cmd.Context(), store, args[0], auditLimit, cmd.OutOrStdout())
	},
}

func init() {
	auditCmd.PersistentFlags().IntVar(&auditLimit, "limit", 20, "maximum rows to show")
	auditCmd.AddCommand(auditUnmatchedCmd, auditSessionsCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAudit() (*audit.Store, func(), error) {
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
	return audit.NewStore(d), closeDB, nil
}

func printUnmatched(ctx context.Context, store *audit.Store, limit int, out io.Writer) error {
	queries, err := store.ListUnmatched(ctx, limit)
	if err != nil {
		return err
	}
	if len(queries) == 0 {
		fmt.Fprintln(out, "No unmatched queries")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tUSER\tINTENT\tCONFIDENCE\tQUERY")
	for _, q := range queries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n",
			q.CreatedAt.Format(time.RFC3339), q.UserID, q.Intent, q.Confidence, q.Query)
	}
	return tw.Flush()
}

func printAPISessions(ctx context.Context, store *audit.Store, userID string, limit int, out io.Writer) error {
	sessions, err := store.ListAPISessions(ctx, userID, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintf(out, "No API calls for %s\n", userID)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREQUEST\tRESPONSE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.CreatedAt.Format(time.RFC3339), s.Request, s.Response)
	}
	return tw.Flush()
}
