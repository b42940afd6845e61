package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/supamigrate/supamigrate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage project aliases and defaults",
}

var configPath string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.PersistentFlags().StringVar(&configPath, "file", "", "Config file to edit (default: user config dir)")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configAddCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configShowCmd)
}

// editPath resolves the config file being edited.
func editPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := editPath()
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Cannot resolve config path", err)
		}

		if _, err := os.Stat(path); err == nil {
			return exitError(foundry.ExitInvalidArgument, "Config file already exists", fmt.Errorf("%s", path))
		}

		starter := &config.Config{
			Defaults: config.Defaults{OnExists: "fail", Output: "stdout"},
			Projects: map[string]config.Project{
				"example": {ProjectRef: "your-project-ref"},
			},
		}
		if err := config.Save(path, starter); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write config", err)
		}

		fmt.Printf("Created %s\n", path)
		fmt.Println("Service keys are read from the environment:")
		fmt.Printf("  %s_<ALIAS>_SERVICE_KEY or SUPABASE_SERVICE_KEY\n", config.EnvPrefix)
		return nil
	},
}

var (
	addRef      string
	addAPIURL   string
	addProvider string
)

var configAddCmd = &cobra.Command{
	Use:   "add <alias>",
	Short: "Add or update a project alias",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alias := args[0]
		if addRef == "" && addAPIURL == "" {
			return exitError(foundry.ExitInvalidArgument, "Either --ref or --api-url is required", fmt.Errorf("alias %q has no endpoint", alias))
		}

		path, err := editPath()
		if err != nil {
			return exitError(foundry.ExitFileNotFound, "Cannot resolve config path", err)
		}

		cfg, err := config.LoadFile(path)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to read config", err)
		}

		cfg.Projects[alias] = config.Project{
			ProjectRef: addRef,
			APIURL:     addAPIURL,
			Provider:   addProvider,
		}
		if err := config.Save(path, cfg); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write config", err)
		}

		fmt.Printf("Saved alias %q to %s\n", alias, path)
		return nil
	},
}

func init() {
	configAddCmd.Flags().StringVar(&addRef, "ref", "", "Project ref")
	configAddCmd.Flags().StringVar(&addAPIURL, "api-url", "", "Storage endpoint override for self-hosted deployments")
	configAddCmd.Flags().StringVar(&addProvider, "provider", "", "Access path: supabase (default) or s3")
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured project aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		aliases := make([]string, 0, len(cliConfig.Projects))
		for alias := range cliConfig.Projects {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)

		for _, alias := range aliases {
			p := cliConfig.Projects[alias]
			endpoint := p.ProjectRef
			if p.APIURL != "" {
				endpoint = p.APIURL
			}
			fmt.Printf("%-20s %s\n", alias, endpoint)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		redacted := config.Config{
			Defaults: cliConfig.Defaults,
			Projects: make(map[string]config.Project, len(cliConfig.Projects)),
		}
		for alias, p := range cliConfig.Projects {
			if p.ServiceKey != "" {
				p.ServiceKey = redactKey(p.ServiceKey)
			}
			if p.S3.SecretAccessKey != "" {
				p.S3.SecretAccessKey = redactKey(p.S3.SecretAccessKey)
			}
			redacted.Projects[alias] = p
		}

		data, err := yaml.Marshal(&redacted)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to render config", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

// redactKey masks all but the last 4 characters of a secret.
func redactKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
