package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the CLI logger. JSON lines always go to noodm.log in the
// XDG cache directory; console adds a human readable copy on stderr.
func newLogger(level string, console bool, stderr io.Writer) (*zap.Logger, func(), error) {
	lvl := zapcore.WarnLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, nil, NewValidationError("configure logging", "log level", level,
				"Use one of: debug, info, warn, error")
		}
		lvl = parsed
	}

	logDir := getXDGCacheDir()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logPath := filepath.Join(logDir, "noodm.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(logFile), lvl),
	}
	if console {
		consoleConfig := zap.NewDevelopmentEncoderConfig()
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(stderr), lvl))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named("noodm")
	logger.Debug("logging initialized",
		zap.String("level", lvl.String()),
		zap.String("log_file", logPath),
		zap.Bool("console", console))

	closer := func() {
		_ = logger.Sync()
		_ = logFile.Close()
	}
	return logger, closer, nil
}

// getXDGCacheDir returns the XDG cache directory for noodm
func getXDGCacheDir() string {
	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, "noodm")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "noodm")
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir, "Library", "Caches", "noodm")
	}
	return filepath.Join(homeDir, ".cache", "noodm")
}
