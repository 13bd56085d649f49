package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

var (
	mu       sync.RWMutex
	level    = INFO
	instance = log.New(os.Stderr, "", log.LstdFlags)
)

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// ParseLevel maps a config string to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetOutput redirects log output, e.g. to a file opened by the caller.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	instance.SetOutput(w)
}

func logAt(l Level, component, msg string, fields map[string]any) {
	mu.RLock()
	min := level
	out := instance
	mu.RUnlock()
	if l < min {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s", levelNames[l], component, msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		line += " " + strings.Join(parts, " ")
	}
	out.Println(line)
}

func DebugC(component, msg string)                         { logAt(DEBUG, component, msg, nil) }
func InfoC(component, msg string)                          { logAt(INFO, component, msg, nil) }
func WarnC(component, msg string)                          { logAt(WARN, component, msg, nil) }
func ErrorC(component, msg string)                         { logAt(ERROR, component, msg, nil) }
func DebugCF(component, msg string, fields map[string]any) { logAt(DEBUG, component, msg, fields) }
func InfoCF(component, msg string, fields map[string]any)  { logAt(INFO, component, msg, fields) }
func WarnCF(component, msg string, fields map[string]any)  { logAt(WARN, component, msg, fields) }
func ErrorCF(component, msg string, fields map[string]any) { logAt(ERROR, component, msg, fields) }
