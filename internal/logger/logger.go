package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message.
type LogLevel string

const (
	Debug LogLevel = "DEBUG"
	Info  LogLevel = "INFO"
	Warn  LogLevel = "WARN"
	Error LogLevel = "ERROR"
)

// minLevel is the minimum level to output. Messages below it are dropped.
var minLevel LogLevel = Info

func levelPriority(level LogLevel) int {
	switch level {
	case Debug:
		return 0
	case Info:
		return 1
	case Warn:
		return 2
	case Error:
		return 3
	default:
		return 1
	}
}

// SetLevel sets the minimum log level. Valid values: "debug", "info", "warn", "error"
func SetLevel(level string) {
	switch level {
	case "debug":
		minLevel = Debug
	case "info":
		minLevel = Info
	case "warn":
		minLevel = Warn
	case "error":
		minLevel = Error
	default:
		minLevel = Info
	}
	log.Printf("Log level set to: %s", minLevel)
}

// LogEntry is a single log message with metadata for streaming to clients.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}

var (
	listeners  []chan LogEntry
	mu         sync.Mutex
	fileLogger *lumberjack.Logger
)

func init() {
	listeners = make([]chan LogEntry, 0)
	// Stdout only until Init() is called with the configured log directory.
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
}

// Init initializes file logging under logDir with rotation.
// Should be called once after config is loaded.
func Init(logDir string) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		log.Printf("Failed to create log directory: %v", err)
		return
	}

	fileLogger = &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "linkarr.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, fileLogger))
}

// Subscribe returns a channel that receives all log entries for real-time streaming.
func Subscribe() chan LogEntry {
	mu.Lock()
	defer mu.Unlock()
	ch := make(chan LogEntry, 100)
	listeners = append(listeners, ch)
	return ch
}

// Unsubscribe removes a log listener channel and closes it.
func Unsubscribe(ch chan LogEntry) {
	mu.Lock()
	defer mu.Unlock()
	for i, l := range listeners {
		if l == ch {
			listeners = append(listeners[:i], listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func broadcast(entry LogEntry) {
	mu.Lock()
	defer mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- entry:
		default:
			// Drop if the subscriber is slow; the publisher never blocks.
		}
	}
}

// Log writes a formatted message at the given level to stdout, file, and subscribers.
func Log(level LogLevel, format string, v ...interface{}) {
	if levelPriority(level) < levelPriority(minLevel) {
		return
	}

	msg := fmt.Sprintf(format, v...)
	timestamp := time.Now().Format(time.RFC3339)

	log.Printf("%s [%s] %s", timestamp, level, msg)

	broadcast(LogEntry{
		Timestamp: timestamp,
		Level:     level,
		Message:   msg,
	})
}

// Debugf logs a formatted message at DEBUG level.
func Debugf(format string, v ...interface{}) {
	Log(Debug, format, v...)
}

// Infof logs a formatted message at INFO level.
func Infof(format string, v ...interface{}) {
	Log(Info, format, v...)
}

// Warnf logs a formatted message at WARN level.
func Warnf(format string, v ...interface{}) {
	Log(Warn, format, v...)
}

// Errorf logs a formatted message at ERROR level.
func Errorf(format string, v ...interface{}) {
	Log(Error, format, v...)
}
