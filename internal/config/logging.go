package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// NewLogger builds the process logger: JSON on stdout, plus a rotating file
// sink when LogDir is set. Debug level in dev, Info otherwise.
// The returned close func is never nil.
func NewLogger(cfg *Config, name string) (*slog.Logger, func() error, error) {
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }

	if cfg.LogDir != "" {
		f, err := SetupLogFile(cfg.LogDir, name, cfg.LogMaxFiles)
		if err != nil {
			return nil, closeFn, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	}))
	return logger, closeFn, nil
}

// SetupLogFile creates a new timestamped log file and cleans up old files.
// Returns the file handle (caller must close) or error.
func SetupLogFile(dir, name string, maxFiles int) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.log",
		name, time.Now().Format("2006-01-02T15-04-05.000")))

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	if err := cleanupOldLogs(dir, name, maxFiles); err != nil {
		// Logging still works; only retention failed
		fmt.Fprintf(os.Stderr, "warning: failed to cleanup old logs: %v\n", err)
	}

	return f, nil
}

// cleanupOldLogs removes oldest log files when count exceeds maxFiles.
func cleanupOldLogs(dir, name string, maxFiles int) error {
	files, err := filepath.Glob(filepath.Join(dir, name+"-*.log"))
	if err != nil {
		return err
	}

	if len(files) <= maxFiles {
		return nil
	}

	// Timestamped names sort chronologically
	sort.Strings(files)

	for _, old := range files[:len(files)-maxFiles] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("remove %s: %w", old, err)
		}
	}

	return nil
}
