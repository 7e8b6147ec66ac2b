// Package nlog is the daemon-wide logging façade. It reproduces the small,
// top-level function surface of aistore's cmn/nlog (Infof/Warningf/Errorf/
// Flush) so call sites read the same way, backed by zerolog for the actual
// leveled, structured write path.
/*
 * Copyright (c) 2018-2026, Jade Archive Project. All rights reserved.
 */
package nlog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// SetLogDirRole opens (creating if need be) "<dir>/<role>.log" and directs
// all subsequent output there as well as stderr, mirroring nlog.SetLogDirRole.
func SetLogDirRole(dir, role string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dir+"/"+role+".log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	mu.Lock()
	file = f
	logger = zerolog.New(io.MultiWriter(os.Stderr, f)).With().Timestamp().Logger()
	mu.Unlock()
	return nil
}

func Infof(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Info().Msgf(format, args...)
}

func Warningf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Error().Msgf(format, args...)
}

// Flush syncs the underlying log file, mirroring nlog.Flush.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		_ = file.Sync()
	}
}

// ExitLogf logs a fatal formatted message, flushes, and terminates the
// process - the daemon's equivalent of cos.ExitLogf.
func ExitLogf(format string, args ...any) {
	Errorf(format, args...)
	Flush()
	os.Exit(1)
}
