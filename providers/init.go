package providers

import (
	"sync"
	"sync/atomic"

	"http-transcript/shared"

	"go.uber.org/zap"
)

var (
	// Package-level logger for providers, read through logger()
	pkgLogger atomic.Pointer[zap.Logger]

	settingsMu sync.RWMutex
	userAgent  = shared.DefaultUserAgent
)

func init() {
	// Initialize with a basic production logger
	// This will be replaced by SetLogger if the main package provides one
	l, err := zap.NewProduction()
	if err != nil {
		// Fallback to nop logger if production logger fails
		l = zap.NewNop()
	}
	pkgLogger.Store(l)
}

func logger() *zap.Logger {
	return pkgLogger.Load()
}

// SetLogger allows the main package to inject its configured logger
func SetLogger(l *zap.Logger) {
	if l != nil {
		pkgLogger.Store(l.With(zap.String("package", "providers")))
	}
}

// Configure applies a loaded Config: default user agent, log payload size and logger
func Configure(cfg *shared.Config) error {
	if cfg == nil {
		return nil
	}
	l, err := shared.NewLoggerFromConfig(cfg)
	if err != nil {
		return err
	}
	SetLogger(l.Logger)

	settingsMu.Lock()
	if cfg.UserAgent != "" {
		userAgent = cfg.UserAgent
	}
	settingsMu.Unlock()
	setMaxLogDataSize(cfg.LogDataBytes)
	return nil
}

func defaultUserAgent() string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return userAgent
}
