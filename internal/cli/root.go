package cli

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/ppiankov/patentscan/internal/logging"
	"github.com/ppiankov/patentscan/internal/model"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags
var Version = "v0.1.0"

var (
	cfgFile  string
	verbose  bool
	logLevel string
	logJSON  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "patentscan",
	Short: "patentscan - bulk extraction of RUPAT patent documents",
	Long: `patentscan resolves Russian patent document numbers against the FIPS
register and extracts bibliographic data, classifications, abstract,
description and claims into CSV, XLSX or JSON Lines.

Requests are paced per egress proxy so that no proxy hits the register more
often than the configured interval, however many user agents rotate over it.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Root exposes the command tree for main and tests
func Root() *cobra.Command {
	return rootCmd
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "patentscan %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.patentscan/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of console output")

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.patentscan")
		}
	}

	// PATENTSCAN_PACING_MIN_INTERVAL=5s overrides pacing.min_interval
	viper.SetEnvPrefix("PATENTSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvKeys(reflect.TypeOf(model.Config{}), "")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

// bindEnvKeys registers every nested config key so Unmarshal sees env overrides
func bindEnvKeys(t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + tag
		if field.Type.Kind() == reflect.Struct {
			bindEnvKeys(field.Type, key+".")
			continue
		}
		_ = viper.BindEnv(key)
	}
}

// loadConfig layers defaults, config file and environment, then validates
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// setupLogger configures zerolog from the config and global flags
func setupLogger(cfg *model.Config) zerolog.Logger {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	pretty := cfg.Log.Pretty && !logJSON
	return logging.Setup(logging.Config{Level: level, Pretty: pretty, Output: os.Stderr})
}
