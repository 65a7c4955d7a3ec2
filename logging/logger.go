package logging

import (
	"io"
	"log"
	"os"
)

const (
	LevelSilent = iota
	LevelError
	LevelInfo
	LevelDebug
)

// Logger is a small leveled logger with one *log.Logger per stream, so
// callers can write s.logger.Debug.Println(...) directly without an
// interface indirection.
type Logger struct {
	Debug *log.Logger
	Info  *log.Logger
	Error *log.Logger
}

func LevelFromString(s string) int {
	switch s {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "error":
		return LevelError
	case "silent":
		return LevelSilent
	}
	return LevelInfo
}

func New(level int, prefix string) *Logger {
	// Stdout is reserved for the newline-delimited JSON protocol toward
	// the UI (see main.go); log output must never land there or it would
	// corrupt that stream.
	output := os.Stderr

	logErr, logInfo, logDebug := func() (io.Writer, io.Writer, io.Writer) {
		if level >= LevelDebug {
			return output, output, output
		}
		if level >= LevelInfo {
			return output, output, io.Discard
		}
		if level >= LevelError {
			return output, io.Discard, io.Discard
		}
		return io.Discard, io.Discard, io.Discard
	}()

	return &Logger{
		Debug: log.New(logDebug, "DEBUG: "+prefix, log.Ldate|log.Ltime),
		Info:  log.New(logInfo, "INFO: "+prefix, log.Ldate|log.Ltime),
		Error: log.New(logErr, "ERROR: "+prefix, log.Ldate|log.Ltime),
	}
}
