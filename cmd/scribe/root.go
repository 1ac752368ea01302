package main

import (
	"fmt"
	"os"

	"github.com/alvmarrod/site-scribe/internal/config"
	"github.com/alvmarrod/site-scribe/internal/logging"
	"github.com/alvmarrod/site-scribe/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// options is shared by every subcommand of one root command
type options struct {
	v          *viper.Viper
	configFile string
}

// NewRootCmd creates the root command for site-scribe
func NewRootCmd() *cobra.Command {
	opts := &options{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "scribe",
		Short: "Crawl a single website and save its visible text",
		Long: `site-scribe crawls every page of one domain breadth-first, starting from a
seed URL, and writes the visible text of each page to a single text file.

Settings come from defaults, an optional config file (--config, JSON or YAML),
SCRIBE_* environment variables and flags, in increasing order of precedence.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (JSON or YAML)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	bindFlags(opts.v, flags, map[string]string{
		"log_level":  "log-level",
		"log_format": "log-format",
	})

	cmd.AddCommand(newCrawlCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// setup loads the configuration and configures logging from it
func (o *options) setup() (*config.Config, error) {
	cfg, err := config.LoadWith(o.v, o.configFile)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindFlags maps config keys to flag names on v. Subcommands bind their own
// flags when they run, since several of them share config keys
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
