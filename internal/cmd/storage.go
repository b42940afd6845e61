package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supamigrate/supamigrate/internal/observability"
	"github.com/supamigrate/supamigrate/pkg/migrate"
	"github.com/supamigrate/supamigrate/pkg/provider"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and move storage data",
	Long: `Inspect buckets and objects, sync buckets between projects, and move
bucket contents between a project and a local directory.

Local directory endpoints use one subdirectory per bucket, the same layout
"storage download" produces.`,
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageListCmd)
	storageCmd.AddCommand(storageSyncCmd)
	storageCmd.AddCommand(storageDownloadCmd)
	storageCmd.AddCommand(storageUploadCmd)
}

var storageListCmd = &cobra.Command{
	Use:   "list <endpoint> [bucket]",
	Short: "List buckets, or objects within a bucket",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStorageList,
}

func runStorageList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := createStore(ctx, args[0])
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to endpoint", err)
	}
	defer func() { _ = store.Close() }()

	if len(args) == 1 {
		buckets, err := store.ListBuckets(ctx)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list buckets", err)
		}
		for _, b := range buckets {
			visibility := "private"
			if b.Public {
				visibility = "public"
			}
			fmt.Printf("%-40s %s\n", b.Name, visibility)
		}
		return nil
	}

	bucket := args[1]
	var token string
	for {
		res, err := store.ListObjects(ctx, bucket, provider.ListOptions{Token: token})
		if err != nil {
			if provider.IsBucketNotFound(err) {
				return exitError(foundry.ExitFileNotFound, "Bucket not found", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list objects", err)
		}
		for _, obj := range res.Objects {
			if obj.Size >= 0 {
				fmt.Printf("%12d  %s\n", obj.Size, obj.Key)
			} else {
				fmt.Printf("%12s  %s\n", "-", obj.Key)
			}
		}
		if !res.IsTruncated || res.Token == "" {
			return nil
		}
		token = res.Token
	}
}

var storageSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync buckets between two endpoints",
	Long: `Copy buckets from a source endpoint to a target endpoint. All buckets
are synced unless --bucket narrows the set. Objects already present in the
target are skipped, making repeat runs incremental.

Examples:
  supamigrate storage sync --from prod --to staging
  supamigrate storage sync --from prod --to staging --bucket photos
  supamigrate storage sync --from prod --to dir:/tmp/backup --bucket photos`,
	RunE: runStorageSync,
}

var (
	syncFrom    string
	syncTo      string
	syncBuckets []string
)

func init() {
	storageSyncCmd.Flags().StringVar(&syncFrom, "from", "", "Source endpoint (required)")
	storageSyncCmd.Flags().StringVar(&syncTo, "to", "", "Target endpoint (required)")
	storageSyncCmd.Flags().StringSliceVar(&syncBuckets, "bucket", nil, "Sync only the named buckets (repeatable)")

	_ = storageSyncCmd.MarkFlagRequired("from")
	_ = storageSyncCmd.MarkFlagRequired("to")
}

func runStorageSync(cmd *cobra.Command, args []string) error {
	return runEngine(cmd, syncFrom, syncTo, migrate.Config{
		Buckets:  syncBuckets,
		OnExists: migrate.OnExistsSkip,
	})
}

var storageDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download buckets to a local directory",
	Long: `Download buckets from an endpoint into a local directory, one
subdirectory per bucket.

Examples:
  supamigrate storage download --from prod --dest /tmp/backup
  supamigrate storage download --from prod --dest /tmp/backup --bucket photos`,
	RunE: runStorageDownload,
}

var (
	downloadFrom    string
	downloadDest    string
	downloadBuckets []string
)

func init() {
	storageDownloadCmd.Flags().StringVar(&downloadFrom, "from", "", "Source endpoint (required)")
	storageDownloadCmd.Flags().StringVar(&downloadDest, "dest", "", "Local destination directory (required)")
	storageDownloadCmd.Flags().StringSliceVar(&downloadBuckets, "bucket", nil, "Download only the named buckets (repeatable)")

	_ = storageDownloadCmd.MarkFlagRequired("from")
	_ = storageDownloadCmd.MarkFlagRequired("dest")
}

func runStorageDownload(cmd *cobra.Command, args []string) error {
	return runEngine(cmd, downloadFrom, dirScheme+downloadDest, migrate.Config{
		Buckets:  downloadBuckets,
		OnExists: migrate.OnExistsOverwrite,
	})
}

var storageUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a local directory tree to an endpoint",
	Long: `Upload buckets from a local directory to an endpoint. The directory
must hold one subdirectory per bucket, the layout "storage download"
produces.

Examples:
  supamigrate storage upload --src /tmp/backup --to staging
  supamigrate storage upload --src /tmp/backup --to staging --bucket photos`,
	RunE: runStorageUpload,
}

var (
	uploadSrc     string
	uploadTo      string
	uploadBuckets []string
)

func init() {
	storageUploadCmd.Flags().StringVar(&uploadSrc, "src", "", "Local source directory (required)")
	storageUploadCmd.Flags().StringVar(&uploadTo, "to", "", "Target endpoint (required)")
	storageUploadCmd.Flags().StringSliceVar(&uploadBuckets, "bucket", nil, "Upload only the named buckets (repeatable)")

	_ = storageUploadCmd.MarkFlagRequired("src")
	_ = storageUploadCmd.MarkFlagRequired("to")
}

func runStorageUpload(cmd *cobra.Command, args []string) error {
	return runEngine(cmd, dirScheme+uploadSrc, uploadTo, migrate.Config{
		Buckets:  uploadBuckets,
		OnExists: migrate.OnExistsSkip,
	})
}

// runEngine wires two endpoints into the migration engine and reports the
// run outcome.
func runEngine(cmd *cobra.Command, from, to string, cfg migrate.Config) error {
	ctx := cmd.Context()

	src, err := createStore(ctx, from)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to source", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := createStore(ctx, to)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to target", err)
	}
	defer func() { _ = dst.Close() }()

	jobID := uuid.New().String()
	writer, cleanup, err := createOutputWriter("", jobID)
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
	}
	defer cleanup()

	m, err := migrate.New(src, dst, nil, writer, observability.CLILogger, cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid settings", err)
	}

	sum, err := m.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Cancelled", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Run failed", err)
	}

	observability.CLILogger.Info("Completed",
		zap.Int64("objects_transferred", sum.ObjectsTransferred),
		zap.Int64("objects_skipped", sum.ObjectsSkipped),
		zap.Int64("errors", sum.Errors))

	if sum.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Completed with errors", fmt.Errorf("errors=%d", sum.Errors))
	}
	return nil
}
