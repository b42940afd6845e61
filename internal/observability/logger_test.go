package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	tests := []struct {
		name       string
		level      string
		jsonFormat bool
		wantDebug  bool
	}{
		{"info console", "info", false, false},
		{"debug console", "debug", false, true},
		{"json format", "warn", true, false},
		{"unknown level falls back to info", "loud", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitCLILogger(tt.level, tt.jsonFormat)
			assert.NotNil(t, CLILogger)
			assert.Equal(t, tt.wantDebug, CLILogger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestSync_NoPanic(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("info", false)
	assert.NotPanics(t, Sync)
}
