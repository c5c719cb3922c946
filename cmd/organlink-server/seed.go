package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/organlink/organlink/internal/domain/directory"
	"github.com/organlink/organlink/internal/domain/hospital"
	"github.com/organlink/organlink/internal/platform/events"
	"github.com/organlink/organlink/internal/platform/sandbox"
)

func seedCmd() *cobra.Command {
	defaults := sandbox.DefaultSeedConfig()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the directory with synthetic donors, recipients and doctors",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			sc := sandbox.SeedConfig{}
			sc.Donors, _ = flags.GetInt("donors")
			sc.Recipients, _ = flags.GetInt("recipients")
			sc.Doctors, _ = flags.GetInt("doctors")
			sc.Hospitals, _ = flags.GetInt("hospitals")
			sc.EmailDomain, _ = flags.GetString("email-domain")
			sc.Seed, _ = flags.GetInt64("seed")
			dryRun, _ := flags.GetBool("dry-run")

			seeder := sandbox.NewSeeder(sc)
			if dryRun {
				return seeder.ExportNDJSON(os.Stdout)
			}

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

			users := directory.NewService(b.users, events.Nop, logger)
			hospitals := hospital.NewService(hospital.NewHospitalRepo(b.pool), hospital.NewDepartmentRepo(b.pool))

			res, err := seeder.Run(ctx, users, hospitals)
			if err != nil {
				logger.Error().Err(err).Int("written", res.Total).Msg("seed stopped")
				return err
			}
			logger.Info().Int64("seed", res.Seed).Int("total", res.Total).Dur("took", res.Duration).Msg("seed complete")

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().Int("donors", defaults.Donors, "Number of donors")
	cmd.Flags().Int("recipients", defaults.Recipients, "Number of recipients")
	cmd.Flags().Int("doctors", defaults.Doctors, "Number of doctors")
	cmd.Flags().Int("hospitals", defaults.Hospitals, "Number of hospitals")
	cmd.Flags().String("email-domain", defaults.EmailDomain, "Domain for generated email addresses")
	cmd.Flags().Int64("seed", 0, "Random seed; 0 picks one from the clock")
	cmd.Flags().Bool("dry-run", false, "Print the generated users as NDJSON instead of writing them")

	return cmd
}
