package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name to a LogLevel, falling back to LevelInfo.
func ParseLevel(value string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	prefix string
	logger *log.Logger
}

func NewLogger(level LogLevel) *Logger {
	return NewWriterLogger(os.Stdout, level)
}

// NewWriterLogger creates a logger writing to w.
func NewWriterLogger(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(w, "", 0),
	}
}

// SetLevel changes the minimum level that is written.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Named returns a logger sharing the output but tagging every entry with component.
func (l *Logger) Named(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := component
	if l.prefix != "" {
		prefix = l.prefix + "." + component
	}
	return &Logger{level: l.level, prefix: prefix, logger: l.logger}
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...any) {
	l.log(LevelFatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	minLevel := l.level
	l.mu.Unlock()
	if level < minLevel {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	fileName := "unknown"
	if ok {
		fileName = filepath.Base(file)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	message := fmt.Sprintf(format, args...)

	component := ""
	if l.prefix != "" {
		component = fmt.Sprintf(" [%s]", l.prefix)
	}

	l.logger.Println(fmt.Sprintf("[%s] [%s]%s [%s:%d] %s",
		timestamp,
		levelNames[level],
		component,
		fileName,
		line,
		message))
}

// FileLogger writes entries to a file in addition to the normal format.
type FileLogger struct {
	*Logger
	file *os.File
}

func NewFileLogger(logFile string, level LogLevel) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &FileLogger{
		Logger: NewWriterLogger(io.MultiWriter(os.Stdout, file), level),
		file:   file,
	}, nil
}

func (l *FileLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitLogger replaces the global logger.
func InitLogger(level LogLevel) {
	SetLogger(NewLogger(level))
}

func SetLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

func GetLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo)
	}
	return globalLogger
}

// Convenience functions
func Debug(format string, args ...any) {
	GetLogger().log(LevelDebug, format, args...)
}

func Info(format string, args ...any) {
	GetLogger().log(LevelInfo, format, args...)
}

func Warn(format string, args ...any) {
	GetLogger().log(LevelWarn, format, args...)
}

func Error(format string, args ...any) {
	GetLogger().log(LevelError, format, args...)
}

func Fatal(format string, args ...any) {
	GetLogger().Fatal(format, args...)
}
