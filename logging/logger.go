// Package logging builds per-component logrus loggers configured from the
// `logging` block of wastenet.yml and WASTENET_* environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/config"
	"github.com/grovetools/wastenet/pkg/paths"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	entry := newLogger(component, logCfg, os.Stderr, isInteractive(os.Stderr))
	loggers[component] = entry
	return entry
}

// newLogger is NewLogger without the config lookup or caching.
func newLogger(component string, logCfg Config, stderr io.Writer, interactive bool) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(resolveLevel(logCfg))

	if os.Getenv("WASTENET_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format, Plain: !interactive})
	}

	if path := logFilePath(component, logCfg); path != "" {
		if hook, err := newFileHook(path, logCfg.File.Format); err == nil {
			logger.AddHook(hook)
		} else if logCfg.File.Enabled {
			// Only warn if explicitly configured
			logger.SetOutput(stderr)
			logger.Warnf("Failed to open log file %s: %v", path, err)
		}
	}

	if shouldLogToStderr(logCfg, logger.GetLevel(), interactive) {
		logger.SetOutput(stderr)
	} else {
		logger.SetOutput(io.Discard)
	}

	return logger.WithField("component", component)
}

func resolveLevel(logCfg Config) logrus.Level {
	levelStr := "info"
	if env := os.Getenv("WASTENET_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// shouldLogToStderr implements structured_to_stderr. In "auto" mode
// structured logs reach stderr only when debugging or when stderr is not a
// terminal (piped, CI, daemonised).
func shouldLogToStderr(logCfg Config, level logrus.Level, interactive bool) bool {
	switch logCfg.Format.StructuredToStderr {
	case "always":
		return true
	case "never":
		return false
	default:
		isDebug := os.Getenv("WASTENET_DEBUG") == "1" || level >= logrus.DebugLevel
		return isDebug || !interactive
	}
}

func isInteractive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// LogFilePath returns the default log file for a component on a given day.
func LogFilePath(component string, day time.Time) string {
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, day.Format("2006-01-02")))
}

func logFilePath(component string, logCfg Config) string {
	if logCfg.File.Enabled && logCfg.File.Path != "" {
		return expandPath(logCfg.File.Path)
	}
	return LogFilePath(component, time.Now())
}

// fileHook writes every entry to a file with its own formatter, so the
// file stays plain text while stderr may be styled.
type fileHook struct {
	mu        sync.Mutex
	w         io.Writer
	formatter logrus.Formatter
}

func newFileHook(path, format string) (*fileHook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	var formatter logrus.Formatter = &TextFormatter{Plain: true}
	if format == "json" {
		formatter = &logrus.JSONFormatter{}
	}
	return &fileHook{w: file, formatter: formatter}, nil
}

func (h *fileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
