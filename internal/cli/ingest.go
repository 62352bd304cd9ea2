package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"noir-registry/internal/app"
)

type ingestOptions struct {
	Releases bool
	Delay    time.Duration
	IndexURL string
}

func newIngestCommand() *cobra.Command {
	opts := ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the curated package index into the registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Releases, "releases", false, "Also record GitHub releases as versions")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 500*time.Millisecond, "Pause between enrichment calls")
	cmd.Flags().StringVar(&opts.IndexURL, "index-url", "", "Index document URL or file path")
	_ = viper.BindPFlag("ingest.releases", cmd.Flags().Lookup("releases"))
	_ = viper.BindPFlag("ingest.delay", cmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag("index_url", cmd.Flags().Lookup("index-url"))
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, opts ingestOptions) error {
	service := newAppService()
	closeStore, err := openStore(ctx, &service)
	if err != nil {
		return err
	}
	defer closeStore()

	report, err := service.Ingest(ctx, app.IngestRequest{
		Releases: resolveBool(cmd, opts.Releases, "ingest.releases", "releases"),
		Delay:    resolveDuration(cmd, opts.Delay, "ingest.delay", "delay"),
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "found: %d (discarded %d)\n", report.Found, report.Discarded)
	fmt.Fprintf(out, "enriched: %d, partial: %d, failed: %d\n", report.Enriched, report.Partial, report.Failed)
	fmt.Fprintf(out, "inserted: %d, updated: %d, unchanged: %d\n", report.Inserted, report.Updated, report.Unchanged)
	if report.Versions > 0 {
		fmt.Fprintf(out, "versions recorded: %d\n", report.Versions)
	}
	return nil
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the registry schema and seed categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), cmd)
		},
	}
}

func runMigrate(ctx context.Context, cmd *cobra.Command) error {
	service := newAppService()
	closeStore, err := openStore(ctx, &service)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := service.Migrate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date, %d categories seeded\n", result.Categories)
	return nil
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a package and its versions from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd.Context(), cmd, args[0])
		},
	}
}

func runDelete(ctx context.Context, cmd *cobra.Command, name string) error {
	service := newAppService()
	closeStore, err := openStore(ctx, &service)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := service.DeletePackage(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted: %s\n", result.Name)
	return nil
}
