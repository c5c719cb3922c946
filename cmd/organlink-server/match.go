package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/domain/matching"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Operate the match generator",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Generate proposals for every recipient and persist them",
		Long: "Runs the same batch as POST /run-match: every donor is paired against every\n" +
			"recipient under the configured policy and the results are upserted.\n" +
			"The run summary is printed to stdout as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, _ := cmd.Flags().GetString("recipient")
			summary, _ := cmd.Flags().GetBool("summary")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := context.Background()
			b, err := openBackends(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer b.Close(context.Background())

			pub, closeFeed := changeFeed(cfg, logger, nil)
			defer closeFeed()
			notify, closeNotify := notifier(cfg, logger)
			defer closeNotify()

			dir := directory.NewService(b.users, pub, logger)
			svc, err := newMatchingService(cfg, b.matches, dir, pub, notify, logger)
			if err != nil {
				return err
			}

			var res *matching.RunResult
			if recipient != "" {
				id, perr := uuid.Parse(recipient)
				if perr != nil {
					return fmt.Errorf("invalid --recipient %q: %w", recipient, perr)
				}
				res, err = svc.RunForRecipient(ctx, "cli", id)
			} else {
				res, err = svc.Run(ctx, "cli")
			}
			if err != nil {
				return fmt.Errorf("match run failed: %w", err)
			}
			if summary {
				res.Matches = nil
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	runCmd.Flags().String("recipient", "", "Only match this recipient ID")
	runCmd.Flags().Bool("summary", false, "Omit the match records from the output")
	cmd.AddCommand(runCmd)

	return cmd
}
