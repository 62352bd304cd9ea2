package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"noir-registry/internal/adapters"
	"noir-registry/internal/shared"
)

// version is set at build time via ldflags.
var version = "dev"

const envPrefix = "NOIR_REGISTRY"

type RootConfig struct {
	ConfigFile string
	LogLevel   string
}

func Execute() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

func newRootCommand() *cobra.Command {
	cfg := RootConfig{}
	cmd := &cobra.Command{
		Use:           "noir-registry",
		Short:         "Noir package registry server and manifest tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(cfg.ConfigFile); err != nil {
				return err
			}
			setupLogging(viper.GetString("log_level"))
			cmd.SetContext(log.Logger.WithContext(cmd.Context()))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "", "Config file path")
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "info", "Log level")
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newIngestCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newAddCommand())
	cmd.AddCommand(newRemoveCommand())
	cmd.AddCommand(newInfoCommand())
	cmd.AddCommand(newSearchCommand())
	return cmd
}

func initConfig(configFile string) error {
	setDefaults()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("github.token", envPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = viper.BindEnv("registry_url", envPrefix+"_URL", envPrefix+"_REGISTRY_URL")

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read config file").
				WithCause(err)
		}
		return nil
	}

	viper.SetConfigName("noir-registry")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/noir-registry")
	if err := viper.ReadInConfig(); err != nil {
		return nil
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "noir-registry.db")
	viper.SetDefault("listen", adapters.DefaultListenAddr)
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("index_url", adapters.DefaultIndexURL)
	viper.SetDefault("registry_url", adapters.DefaultRegistryURL)
	viper.SetDefault("cache_root", adapters.DefaultSourceCacheRoot())
	viper.SetDefault("ingest.delay", 500*time.Millisecond)
	viper.SetDefault("http.timeout", 30*time.Second)
	viper.SetDefault("http.retries", 3)
	viper.SetDefault("http.retry_delay", 100*time.Millisecond)
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func exitCodeForError(err error) int {
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument, errbuilder.CodeAlreadyExists:
		return 2
	case errbuilder.CodeFailedPrecondition:
		return 3
	case errbuilder.CodeNotFound:
		return 4
	case errbuilder.CodeInternal:
		return 5
	case errbuilder.CodeUnavailable:
		return 6
	default:
		return 1
	}
}

func errorMessage(err error) string {
	return shared.ErrorMessage(err)
}
