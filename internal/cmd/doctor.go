package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supamigrate/supamigrate/internal/config"
	"github.com/supamigrate/supamigrate/internal/observability"
)

var doctorEndpoint string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the local setup and suggest fixes for common
issues.

Examples:
  supamigrate doctor                   # Environment and config checks
  supamigrate doctor --endpoint prod   # Also probe a configured endpoint`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorEndpoint, "endpoint", "", "Probe a configured endpoint with a bucket listing")
}

func runDoctor(cmd *cobra.Command, args []string) {
	log := observability.CLILogger
	log.Info("=== supamigrate doctor ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 4
	if doctorEndpoint != "" {
		totalChecks = 5
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		log.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Config file
	if configFile, err := config.DefaultPath(); err != nil {
		log.Warn(fmt.Sprintf("[%d/%d] Checking config file... ⚠️  Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else if _, statErr := os.Stat(configFile); statErr == nil {
		log.Info(fmt.Sprintf("[%d/%d] Checking config file... ✅ %s", checkNum, totalChecks, configFile),
			zap.String("config_file", configFile))
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking config file... ⚠️  not found (run 'supamigrate config init')", checkNum, totalChecks))
	}
	checkNum++

	// Check 3: Project aliases
	if len(cliConfig.Projects) > 0 {
		log.Info(fmt.Sprintf("[%d/%d] Checking project aliases... ✅ %d configured", checkNum, totalChecks, len(cliConfig.Projects)))
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking project aliases... ⚠️  none configured (bare project refs still work)", checkNum, totalChecks))
	}
	checkNum++

	// Check 4: Environment
	log.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	if os.Getenv("SUPABASE_SERVICE_KEY") != "" {
		log.Info("        SUPABASE_SERVICE_KEY is set " + redactKey(os.Getenv("SUPABASE_SERVICE_KEY")))
	}
	checkNum++

	// Check 5: Endpoint probe
	if doctorEndpoint != "" {
		allChecks = runEndpointCheck(cmd, checkNum, totalChecks) && allChecks
	}

	log.Info("")
	if allChecks {
		log.Info("✅ All checks passed! Your supamigrate installation is healthy.")
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
}

// runEndpointCheck probes a configured endpoint with a bucket listing.
func runEndpointCheck(cmd *cobra.Command, checkNum, totalChecks int) bool {
	log := observability.CLILogger
	ctx := cmd.Context()

	store, err := createStore(ctx, doctorEndpoint)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking endpoint %q... ❌ Cannot connect", checkNum, totalChecks, doctorEndpoint),
			zap.Error(err))
		printServiceKeyHelp()
		return false
	}
	defer func() { _ = store.Close() }()

	buckets, err := store.ListBuckets(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking endpoint %q... ❌ Cannot list buckets", checkNum, totalChecks, doctorEndpoint),
			zap.Error(err))
		printServiceKeyHelp()
		return false
	}

	log.Info(fmt.Sprintf("[%d/%d] Checking endpoint %q... ✅ %d buckets visible", checkNum, totalChecks, doctorEndpoint, len(buckets)))
	return true
}

// printServiceKeyHelp prints help for configuring service keys.
func printServiceKeyHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure access:")
	log.Info("  1. Set SUPAMIGRATE_<ALIAS>_SERVICE_KEY for the alias, or")
	log.Info("  2. Set SUPABASE_SERVICE_KEY as a shared fallback, or")
	log.Info("  3. Put the key in the config file (not recommended for shared machines)")
	log.Info("")
	log.Info("The service role key is required; anon keys cannot list buckets.")
	log.Info("")
}
