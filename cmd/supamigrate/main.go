package main

import (
	"github.com/supamigrate/supamigrate/internal/cmd"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}
