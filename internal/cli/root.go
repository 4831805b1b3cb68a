package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pratik-mahalle/costwatch/internal/app"
	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
)

// options carries state shared by every subcommand
type options struct {
	cfgFile  string
	envFile  string
	output   string
	logLevel string

	v   *viper.Viper
	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{v: viper.New()}

	root := &cobra.Command{
		Use:   "costwatch",
		Short: "costwatch - cloud cost analysis and alerting engine",
		Long: `costwatch collects daily billing data from AWS, GCP and Azure, evaluates it
against thresholds, budgets and anomaly baselines, and raises deduplicated
alerts with an acknowledge/resolve/escalate lifecycle.

Run a single pass with 'costwatch run', or start the scheduler and operator
API with 'costwatch serve'.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.cfgFile, "config", "", "CLI config file (default $HOME/.costwatch/config.yaml)")
	flags.StringVar(&o.envFile, "env-file", "", "load environment from this file before reading configuration")
	flags.StringVarP(&o.output, "output", "o", "table", "output format: table, json, yaml")
	flags.StringVar(&o.logLevel, "log-level", "", "override LOG_LEVEL")

	_ = o.v.BindPFlag("output", flags.Lookup("output"))

	root.AddCommand(
		newRunCmd(o),
		newAlertPassCmd(o),
		newCollectCmd(o),
		newServeCmd(o),
		newMigrateCmd(o),
		newAlertsCmd(o),
		newRecommendationsCmd(o),
		newSettingsCmd(o),
		newRunsCmd(o),
		newTokenCmd(o),
	)
	return root
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func (o *options) init() error {
	o.readCLIConfig()

	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	o.cfg = cfg
	o.log = logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	return nil
}

// readCLIConfig loads operator preferences (output format, actor name).
// The file is optional.
func (o *options) readCLIConfig() {
	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		o.v.AddConfigPath(filepath.Join(home, ".costwatch"))
		o.v.SetConfigName("config")
		o.v.SetConfigType("yaml")
	}

	o.v.SetEnvPrefix("COSTWATCH")
	o.v.AutomaticEnv()
	o.v.SetDefault("output", "table")

	_ = o.v.ReadInConfig()
}

func (o *options) outputFormat() string {
	if o.output != "" && o.output != "table" {
		return o.output
	}
	return o.v.GetString("output")
}

// actor names the operator for lifecycle changes made from the CLI
func (o *options) actor(flag string) string {
	if flag != "" {
		return flag
	}
	if a := o.v.GetString("actor"); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

func (o *options) openApp(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), o.cfg, o.log)
}
