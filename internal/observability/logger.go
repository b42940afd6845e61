// Package observability provides logging setup for the CLI.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for CLI commands. It defaults to a
// no-op logger so commands and tests can log before InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger configures CLILogger for console or JSON output on stderr.
// Unknown level strings fall back to info.
func InitCLILogger(level string, jsonFormat bool) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		NameKey:        "logger",
		CallerKey:      "",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		// Console output drops timestamps so command output reads like a
		// normal CLI.
		encCfg.TimeKey = ""
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core)
}

// Sync flushes any buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = CLILogger.Sync()
}
