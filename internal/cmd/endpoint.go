package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/supamigrate/supamigrate/internal/config"
	"github.com/supamigrate/supamigrate/pkg/provider"
	"github.com/supamigrate/supamigrate/pkg/provider/dir"
	"github.com/supamigrate/supamigrate/pkg/provider/s3"
	"github.com/supamigrate/supamigrate/pkg/provider/supabase"
)

// dirScheme marks a local directory endpoint, e.g. dir:/tmp/backup.
const dirScheme = "dir:"

// createStore turns an endpoint name into a connected store. The name is
// either a dir: path, a config alias, or a bare project ref.
func createStore(ctx context.Context, name string) (provider.Store, error) {
	if strings.HasPrefix(name, dirScheme) {
		root := strings.TrimPrefix(name, dirScheme)
		return dir.New(dir.Config{Root: root})
	}

	project, err := cliConfig.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint %q: %w", name, err)
	}

	switch project.Provider {
	case "s3":
		return createS3Store(ctx, project)
	case "", "supabase":
		return createSupabaseStore(project)
	default:
		return nil, fmt.Errorf("unknown provider %q for endpoint %q", project.Provider, name)
	}
}

func createSupabaseStore(project config.Project) (provider.Store, error) {
	cfg := supabase.Config{
		ProjectRef: project.ProjectRef,
		ServiceKey: project.ServiceKey,
		URL:        project.APIURL,
		PageSize:   cliConfig.Defaults.PageSize,
	}
	return supabase.New(cfg)
}

func createS3Store(ctx context.Context, project config.Project) (provider.Store, error) {
	endpoint := project.S3.Endpoint
	if endpoint == "" && project.ProjectRef != "" {
		// Hosted projects expose an S3-compatible gateway next to the
		// storage API.
		endpoint = fmt.Sprintf("https://%s.supabase.co/storage/v1/s3", project.ProjectRef)
	}

	cfg := s3.Config{
		Region:          project.S3.Region,
		Endpoint:        endpoint,
		AccessKeyID:     project.S3.AccessKeyID,
		SecretAccessKey: project.S3.SecretAccessKey,
		// Force path-style URLs when custom endpoint is set.
		ForcePathStyle: project.S3.ForcePathStyle || endpoint != "",
	}
	return s3.New(ctx, cfg)
}
