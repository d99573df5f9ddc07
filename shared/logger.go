package shared

import (
	"go.uber.org/zap"
)

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	ServiceName string
	Development bool // console logging at debug level
	Quiet       bool // error-only, no caller or stacktraces
}

// Logger wraps zap.Logger with additional context
type Logger struct {
	*zap.Logger
}

// NewLogger creates a new logger instance based on the configuration
func NewLogger(config LoggerConfig) (*Logger, error) {
	var zapConfig zap.Config

	switch {
	case config.Quiet:
		// Provers may run this on machines where log shipping is not trusted
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		zapConfig.DisableCaller = true
		zapConfig.DisableStacktrace = true
	case config.Development:
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	default:
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	zapLogger = zapLogger.With(zap.String("service", serviceName))

	return &Logger{Logger: zapLogger}, nil
}

// NewLoggerFromConfig creates a logger from a loaded Config
func NewLoggerFromConfig(cfg *Config) (*Logger, error) {
	return NewLogger(LoggerConfig{
		ServiceName: cfg.ServiceName,
		Development: cfg.Development,
		Quiet:       cfg.Quiet,
	})
}
