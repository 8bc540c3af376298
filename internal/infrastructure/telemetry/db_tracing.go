package telemetry

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing
type DBTracingConfig struct {
	Enabled bool
	// DBSystem names the database in span attributes
	DBSystem string
	// LogFullSQL keeps bound values in the recorded SQL. Development only.
	LogFullSQL bool
}

// DefaultDBTracingConfig returns the secure defaults: tracing off, values stripped
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		Enabled:  false,
		DBSystem: "postgresql",
	}
}

// RegisterDBTracing installs the otelgorm plugin so every query becomes a
// child span of the request that issued it
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled, skipping otelgorm registration")
		return nil
	}

	opts := []otelgorm.Option{
		otelgorm.WithDBName(cfg.DBSystem),
	}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Bool("log_full_sql", cfg.LogFullSQL),
	)
	return nil
}
