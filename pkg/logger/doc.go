// Package logger builds slog loggers for the billing service and holds the
// attribute helpers that keep key names consistent across packages.
//
// New takes functional options. FromConfig applies the APP_ENV profile
// (development: text at debug; staging and production: JSON at info) and an
// optional LOG_LEVEL override. WithContextExtractors adds request-scoped
// attributes such as the request id to every *Context call. Values of
// sensitive keys (DefaultRedactedKeys plus WithRedactedKeys) are masked.
//
//	log := logger.New(
//		logger.FromConfig(cfg, "billingsync"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "subscription plan switched",
//		logger.UserID(userID),
//		logger.PriceID(priceID),
//	)
//
// Error, CustomerID, SubscriptionID and PriceID return an empty attribute for
// zero values, so callers can pass them unconditionally.
package logger
