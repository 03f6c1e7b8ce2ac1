package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the logger built by InitLogger, or a console logger before that
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	logger := globalLogger
	loggerMutex.RUnlock()
	if logger != nil {
		return logger
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter("15:04:05"))
	}
	return globalLogger
}

// SetLogger replaces the global logger, used by tests and the MCP binary
func SetLogger(logger arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// InitLogger builds the process logger from the [logging] section and stores it
// as the global logger. Console output is used whenever file output is unavailable.
func InitLogger(config *Config) arbor.ILogger {
	cfg := config.Logging
	format := cfg.TimeFormat
	if format == "" {
		format = "15:04:05"
	}

	toFile, toConsole := false, false
	for _, output := range cfg.Output {
		switch output {
		case "file":
			toFile = true
		case "stdout", "console":
			toConsole = true
		}
	}

	logger := arbor.NewLogger()

	if toFile {
		if path, err := logFilePath(cfg.File); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file logging disabled: %v\n", err)
			toFile = false
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:             models.LogWriterTypeFile,
				FileName:         path,
				TimeFormat:       format,
				MaxSize:          int64(cfg.MaxSizeMB) * 1024 * 1024,
				MaxBackups:       cfg.MaxBackups,
				TextOutput:       true,
				DisableTimestamp: false,
			})
		}
	}

	if toConsole || !toFile {
		logger = logger.WithConsoleWriter(consoleWriter(format))
	}

	logger = logger.WithLevelFromString(cfg.Level)
	SetLogger(logger)
	return logger
}

// logFilePath resolves the configured log file, defaulting to logs/extracta.log
// next to the executable, and creates its directory
func logFilePath(configured string) (string, error) {
	path := configured
	if path == "" {
		execPath, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("failed to locate executable: %w", err)
		}
		path = filepath.Join(filepath.Dir(execPath), "logs", "extracta.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return path, nil
}

func consoleWriter(timeFormat string) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       timeFormat,
		TextOutput:       true,
		DisableTimestamp: false,
	}
}

// GetLogFilePath returns the file the logger writes to, empty without file output
func GetLogFilePath(logger arbor.ILogger) string {
	if logger == nil {
		return ""
	}
	return logger.GetLogFilePath()
}
