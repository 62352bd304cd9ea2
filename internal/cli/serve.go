package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"noir-registry/internal/adapters"
	"noir-registry/internal/app"
)

type serveOptions struct {
	Listen         string
	AllowedOrigins []string
	Schedule       string
	Releases       bool
	Delay          time.Duration
	NoMigrate      bool
}

func newServeCommand() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registry query API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", adapters.DefaultListenAddr, "Listen address")
	cmd.Flags().StringSliceVar(&opts.AllowedOrigins, "allowed-origin", nil, "Allowed CORS origins (default all)")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "Cron schedule for background ingestion (empty disables it)")
	cmd.Flags().BoolVar(&opts.Releases, "releases", false, "Record GitHub releases during scheduled ingestion")
	cmd.Flags().DurationVar(&opts.Delay, "delay", 500*time.Millisecond, "Pause between enrichment calls during scheduled ingestion")
	cmd.Flags().BoolVar(&opts.NoMigrate, "no-migrate", false, "Skip schema migration on startup")
	_ = viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("allowed_origins", cmd.Flags().Lookup("allowed-origin"))
	_ = viper.BindPFlag("ingest.schedule", cmd.Flags().Lookup("schedule"))
	_ = viper.BindPFlag("ingest.releases", cmd.Flags().Lookup("releases"))
	_ = viper.BindPFlag("ingest.delay", cmd.Flags().Lookup("delay"))
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := newAppService()
	closeStore, err := openStore(ctx, &service)
	if err != nil {
		return err
	}
	defer closeStore()
	if !opts.NoMigrate {
		if _, err := service.Migrate(ctx); err != nil {
			return err
		}
	}

	logger := *log.Ctx(ctx)
	schedule := strings.TrimSpace(resolveString(cmd, opts.Schedule, "ingest.schedule", "schedule"))
	if schedule != "" {
		scheduler := adapters.NewCronSchedulerAdapter(logger)
		req := app.IngestRequest{
			Releases: resolveBool(cmd, opts.Releases, "ingest.releases", "releases"),
			Delay:    resolveDuration(cmd, opts.Delay, "ingest.delay", "delay"),
		}
		if err := service.ScheduleIngest(ctx, scheduler, schedule, req); err != nil {
			return err
		}
		scheduler.Start()
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	server := adapters.NewHTTPServerAdapter(
		resolveString(cmd, opts.Listen, "listen", "listen"),
		resolveStrings(cmd, opts.AllowedOrigins, "allowed_origins", "allowed-origin"),
		service,
		logger,
	)
	return server.Serve(ctx)
}
