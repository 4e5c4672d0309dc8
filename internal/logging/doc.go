// Package logging builds the supplierd zap logger.
//
// The logger writes JSON or console output, redacts sensitive fields and
// values (API keys in search URLs, bearer tokens), and samples repeated
// debug, info and warn entries. Errors are never sampled.
//
//	logger, err := logging.New(logging.NewDefaultConfig(), os.Stdout)
//	if err != nil {
//	    return err
//	}
//	defer logging.Sync(logger)
//
// Request-scoped fields travel in the context:
//
//	ctx = logging.WithRequestID(ctx, c.Response().Header().Get(echo.HeaderXRequestID))
//	logger.Info("extraction finished", logging.ContextFields(ctx)...)
package logging
