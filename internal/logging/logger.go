// Package logging provides config-gated, categorized file logging for the
// code intelligence core. Logs are written to .codeplane/logs/ with one file
// per category. When debug_mode is off, logging is a silent no-op.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"
	CategoryStore       Category = "store"
	CategoryLexical     Category = "lexical"
	CategoryParser      Category = "parser"
	CategoryDiscovery   Category = "discovery"
	CategoryReconcile   Category = "reconcile"
	CategoryIndexer     Category = "indexer"
	CategoryResolver    Category = "resolver"
	CategoryEpoch       Category = "epoch"
	CategoryWatcher     Category = "watcher"
	CategoryCoordinator Category = "coordinator"
	CategoryQuery       Category = "query"
)

const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Config mirrors the relevant subset of config.LoggingConfig, duplicated
// here to avoid a circular import between internal/config and
// internal/logging (internal/config may eventually want to log its own
// load errors).
type Config struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
}

type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	cfg       Config
	cfgMu     sync.RWMutex
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory for the given repo root and
// applies cfg. Safe to call multiple times; the second call only updates cfg.
func Initialize(repoRoot string, c Config) error {
	cfgMu.Lock()
	cfg = c
	switch c.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	cfgMu.Unlock()

	if !c.DebugMode {
		return nil
	}

	logsDir = filepath.Join(repoRoot, ".codeplane", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("logging initialized, repo=%s debug_mode=%v level=%s", repoRoot, c.DebugMode, c.Level)
	return nil
}

func isCategoryEnabled(category Category) bool {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if !cfg.DebugMode {
		return false
	}
	if cfg.Categories == nil {
		return true
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or lazily creates) the logger for category. Returns a no-op
// logger when logging is disabled so call sites never need a nil check.
func Get(category Category) *Logger {
	if !isCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return &Logger{category: category}
	}

	l := &Logger{category: category, file: f, logger: log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)}
	loggers[category] = l
	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := struct {
		TS  int64  `json:"ts"`
		Cat string `json:"cat"`
		Lvl string `json:"lvl"`
		Msg string `json:"msg"`
	}{time.Now().UnixMilli(), string(l.category), level, msg}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if l.logger == nil || logLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	cfgMu.RLock()
	jsonFormat := cfg.JSONFormat
	cfgMu.RUnlock()
	if jsonFormat {
		l.logJSON(tag, msg)
		return
	}
	l.logger.Printf("[%s] %s", tag, msg)
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write(LevelDebug, "DEBUG", format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.write(LevelInfo, "INFO", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write(LevelWarn, "WARN", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.write(LevelError, "ERROR", format, args...) }

// Timer measures and logs the duration of an operation on Stop.
type Timer struct {
	logger *Logger
	op     string
	start  time.Time
}

// StartTimer begins timing op under category; call Stop() when done.
func StartTimer(category Category, op string) *Timer {
	return &Timer{logger: Get(category), op: op, start: time.Now()}
}

func (t *Timer) Stop() {
	t.logger.Debug("%s took %v", t.op, time.Since(t.start))
}
