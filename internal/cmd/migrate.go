package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supamigrate/supamigrate/internal/observability"
	"github.com/supamigrate/supamigrate/pkg/match"
	"github.com/supamigrate/supamigrate/pkg/migrate"
	"github.com/supamigrate/supamigrate/pkg/output"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy all buckets and objects from one project to another",
	Long: `Copy storage buckets and objects from a source project to a target
project. Buckets are recreated in the target with matching visibility. A
bucket that already exists in the target is reused and its objects are
still copied.

Each object is staged through a local scratch file. A failed upload keeps
the scratch file on disk so the downloaded payload is not lost.

Examples:
  supamigrate migrate --from prod --to staging
  supamigrate migrate --from prod --to staging --bucket photos
  supamigrate migrate --from prod --to dir:/tmp/backup --on-exists skip
  supamigrate migrate --from prod --to staging --plan`,
	RunE: runMigrate,
}

var (
	migrateFrom       string
	migrateTo         string
	migrateBuckets    []string
	migrateIncludes   []string
	migrateExcludes   []string
	migrateOnExists   string
	migrateScratchDir string
	migrateDryRun     bool
	migratePlan       bool
	migrateOutput     string
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "Source endpoint: alias, project ref, or dir:/path (required)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "Target endpoint: alias, project ref, or dir:/path (required)")
	migrateCmd.Flags().StringSliceVar(&migrateBuckets, "bucket", nil, "Migrate only the named buckets (repeatable)")
	migrateCmd.Flags().StringSliceVar(&migrateIncludes, "include", nil, "Glob patterns for object keys to include")
	migrateCmd.Flags().StringSliceVar(&migrateExcludes, "exclude", nil, "Glob patterns for object keys to exclude")
	migrateCmd.Flags().StringVar(&migrateOnExists, "on-exists", "", "Behavior for existing target objects: fail, skip, overwrite")
	migrateCmd.Flags().StringVar(&migrateScratchDir, "scratch-dir", "", "Local staging directory (default: fresh temp dir)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "List and match objects without transferring")
	migrateCmd.Flags().BoolVar(&migratePlan, "plan", false, "Show the resolved plan without connecting anywhere")
	migrateCmd.Flags().StringVarP(&migrateOutput, "output", "o", "", "JSONL destination: stdout or file path")

	_ = migrateCmd.MarkFlagRequired("from")
	_ = migrateCmd.MarkFlagRequired("to")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	onExists := migrateOnExists
	if onExists == "" {
		onExists = cliConfig.Defaults.OnExists
	}
	scratchDir := migrateScratchDir
	if scratchDir == "" {
		scratchDir = cliConfig.Defaults.ScratchDir
	}

	if migratePlan {
		return showMigratePlan(onExists, scratchDir)
	}

	matcher, err := buildMatcher(migrateIncludes, migrateExcludes)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid include/exclude patterns", err)
	}

	jobID := uuid.New().String()
	writer, cleanup, err := createOutputWriter(migrateOutput, jobID)
	if err != nil {
		observability.CLILogger.Error("Failed to create output writer", zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	src, err := createStore(ctx, migrateFrom)
	if err != nil {
		observability.CLILogger.Error("Failed to connect to source", zap.String("endpoint", migrateFrom), zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to source", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := createStore(ctx, migrateTo)
	if err != nil {
		observability.CLILogger.Error("Failed to connect to target", zap.String("endpoint", migrateTo), zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to target", err)
	}
	defer func() { _ = dst.Close() }()

	m, err := migrate.New(src, dst, matcher, writer, observability.CLILogger, migrate.Config{
		Buckets:    migrateBuckets,
		OnExists:   onExists,
		DryRun:     migrateDryRun,
		ScratchDir: scratchDir,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid migration settings", err)
	}

	observability.CLILogger.Info("Starting migration",
		zap.String("job_id", jobID),
		zap.String("from", migrateFrom),
		zap.String("to", migrateTo),
		zap.Bool("dry_run", migrateDryRun))

	sum, err := m.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			observability.CLILogger.Warn("Migration cancelled",
				zap.Int64("objects_transferred", sum.ObjectsTransferred))
			return exitError(foundry.ExitSignalInt, "Migration cancelled", err)
		}
		observability.CLILogger.Error("Migration failed", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Migration failed", err)
	}

	observability.CLILogger.Info("Migration completed",
		zap.Int64("buckets", sum.BucketsListed),
		zap.Int64("objects_transferred", sum.ObjectsTransferred),
		zap.Int64("objects_skipped", sum.ObjectsSkipped),
		zap.Int64("bytes", sum.BytesTransferred),
		zap.Int64("errors", sum.Errors),
		zap.Duration("duration", sum.Duration))

	if sum.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Migration completed with errors", fmt.Errorf("errors=%d", sum.Errors))
	}
	return nil
}

func showMigratePlan(onExists, scratchDir string) error {
	fmt.Println("=== Migration Plan ===")
	fmt.Println()
	fmt.Printf("Source:   %s\n", migrateFrom)
	fmt.Printf("Target:   %s\n", migrateTo)
	if len(migrateBuckets) > 0 {
		fmt.Printf("Buckets:  %s\n", strings.Join(migrateBuckets, ", "))
	} else {
		fmt.Println("Buckets:  all")
	}
	if len(migrateIncludes) > 0 {
		fmt.Printf("Includes: %s\n", strings.Join(migrateIncludes, ", "))
	}
	if len(migrateExcludes) > 0 {
		fmt.Printf("Excludes: %s\n", strings.Join(migrateExcludes, ", "))
	}
	fmt.Printf("OnExists: %s\n", onExists)
	if scratchDir != "" {
		fmt.Printf("Scratch:  %s\n", scratchDir)
	} else {
		fmt.Println("Scratch:  temp dir")
	}
	fmt.Println()
	fmt.Println("Plan validated. Remove --plan to execute.")
	return nil
}

func buildMatcher(includes, excludes []string) (*match.Matcher, error) {
	if len(includes) == 0 && len(excludes) == 0 {
		return match.MatchAll(), nil
	}
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	return match.New(match.Config{Includes: includes, Excludes: excludes, IncludeHidden: true})
}

// createOutputWriter builds the JSONL writer for a run. An empty
// destination falls back to the configured default.
func createOutputWriter(dest, jobID string) (output.Writer, func(), error) {
	if dest == "" {
		dest = cliConfig.Defaults.Output
	}

	if dest == "" || dest == "stdout" {
		w := output.NewJSONLWriter(os.Stdout, jobID)
		return w, func() { _ = w.Close() }, nil
	}
	if dest == "discard" || dest == "none" {
		return output.NewDiscard(), func() {}, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	w := output.NewJSONLWriter(f, jobID)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
