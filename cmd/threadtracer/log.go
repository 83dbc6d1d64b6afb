package main

import (
	"os"

	"github.com/phuslu/log"
)

func parseLogLevel(levelStr string) log.Level {
	switch levelStr {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func setupLogger(levelStr string) {
	log.DefaultLogger = log.Logger{
		Level:      parseLogLevel(levelStr),
		TimeFormat: "15:04:05.000",
		Writer: &log.ConsoleWriter{
			ColorOutput:    log.IsTerminal(os.Stderr.Fd()),
			EndWithMessage: true,
		},
	}
}
