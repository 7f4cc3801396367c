// Package logger builds the service's *slog.Logger.
//
// New takes functional options for level, format, static attributes and
// ContextExtractor callbacks. Extractors run on every record, so values kept
// in a request context (the request id) reach the log line without being
// passed explicitly.
//
// Attribute helpers in attr.go (Queue, MessageID, Tries, WorkerID, Error and
// friends) keep key names consistent across packages.
//
// # Usage
//
//	var cfg logger.Config
//	_ = config.Load(&cfg)
//
//	log := logger.New(append(logger.FromConfig(cfg),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)...)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "message claimed",
//	    logger.Queue("emails"),
//	    logger.MessageID(d.ID),
//	    logger.Tries(d.Tries),
//	)
//
// # Configuration
//
// APP_ENV selects a preset: development logs text at debug level, staging
// and production log JSON at info level. LOG_LEVEL and LOG_FORMAT override
// the preset. APP_NAME is attached to every record as "service".
//
// Error returns an empty attribute for a nil error, so
//
//	log.Info("operation finished", logger.Error(err))
//
// needs no nil check.
package logger
