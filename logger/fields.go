package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across wptmeta.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"
	FieldOperation = "operation"

	// Inputs
	FieldLogFile  = "log_file"
	FieldLine     = "line"
	FieldAction   = "action"
	FieldCatalog  = "catalog"
	FieldMetadata = "metadata_path"
	FieldFile     = "file"
	FieldPath     = "path"

	// Expectation data
	FieldTest     = "test"
	FieldSubtest  = "subtest"
	FieldProperty = "property"
	FieldStatus   = "status"
	FieldScope    = "scope"
	FieldRunInfo  = "run_info"

	// Timing and counts
	FieldDurationMS = "duration_ms"
	FieldCount      = "count"
	FieldTotalCount = "total_count"

	// Errors
	FieldError = "error"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Updater struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New() *Updater {
//	    return &Updater{
//	        logger: logger.ComponentLogger("updater"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
//
// Example:
//
//	streamLogger := logger.ChildLogger(base, logger.FieldLogFile, path)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}

// OrNop returns l, or the global logger when l is nil
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	if Logger != nil {
		return Logger
	}
	return zap.NewNop().Sugar()
}
