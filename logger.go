// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rhi

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// drivers holds the drivers of live devices so that SetLogger reaches them.
var (
	driversMu sync.Mutex
	drivers   = map[*Device]loggerSetter{}
)

// SetLogger configures the logger for rhi and the drivers of its devices.
// By default, rhi produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by rhi:
//   - [slog.LevelDebug]: semaphore slots, command pool resets, layout transitions
//   - [slog.LevelInfo]: swap chain creation and resizes
//   - [slog.LevelWarn]: transient surface errors, acquisition slot mismatches
//   - [slog.LevelError]: configuration, resource state and driver call failures
//
// Example:
//
//	rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	driversMu.Lock()
	defer driversMu.Unlock()
	for _, ls := range drivers {
		ls.SetLogger(l)
	}
}

// Logger returns the current logger used by rhi.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by drivers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// registerDriver propagates the current logger to the driver of d and
// keeps it reachable by SetLogger until unregisterDriver.
func registerDriver(d *Device) {
	ls, ok := d.drv.(loggerSetter)
	if !ok {
		return
	}
	ls.SetLogger(Logger())
	driversMu.Lock()
	drivers[d] = ls
	driversMu.Unlock()
}

func unregisterDriver(d *Device) {
	driversMu.Lock()
	delete(drivers, d)
	driversMu.Unlock()
}
