// Package cmd implements the supamigrate command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/supamigrate/supamigrate/internal/config"
	"github.com/supamigrate/supamigrate/internal/observability"
)

// versionInfo holds build-time version metadata, set via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

var (
	cfgFile   string
	logLevel  string
	logJSON   bool
	verbose   bool
	cliConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "supamigrate",
	Short: "Migrate storage buckets between projects",
	Long: `supamigrate copies storage buckets and their objects from one project
to another: buckets are recreated in the target with matching visibility,
then every object is downloaded and re-uploaded one at a time.

Projects are addressed by config alias, bare project ref, or a local
directory endpoint (dir:/path) for offline work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		if verbose {
			level = "debug"
		}
		observability.InitCLILogger(level, logJSON)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
		}
		cliConfig = cfg
		return nil
	},
}

func init() {
	setDefaults()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: ./supamigrate.yaml or user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")
}

// setDefaults seeds viper with baseline settings so config lookups always
// resolve.
func setDefaults() {
	viper.SetDefault("defaults.on_exists", "fail")
	viper.SetDefault("defaults.output", "stdout")
	viper.SetDefault("defaults.log_level", "info")
	viper.SetDefault("defaults.page_size", 100)
}

// Execute runs the root command and exits the process with the command's
// mapped exit code on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return
	}

	var coded *codedError
	if errors.As(err, &coded) {
		fmt.Fprintln(os.Stderr, "Error:", coded.Error())
		os.Exit(coded.code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

// codedError carries an exit code alongside the error chain.
type codedError struct {
	code    int
	message string
	err     error
}

func (e *codedError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s (exit code %d)", e.message, e.code)
	}
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *codedError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &codedError{code: code, message: message, err: err}
}

