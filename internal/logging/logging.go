// Package logging provides leveled logging gated by the LOG_LEVEL
// environment variable (debug|info|error).
package logging

import (
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var current Level = LevelInfo

// InitFromEnv sets the log level from LOG_LEVEL.
func InitFromEnv() {
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel sets the log level by name. Unknown names fall back to info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "error":
		current = LevelError
	case "debug":
		current = LevelDebug
	default:
		current = LevelInfo
	}
}

func Debugf(format string, args ...interface{}) {
	if current <= LevelDebug {
		log.Printf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if current <= LevelInfo {
		log.Printf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}
