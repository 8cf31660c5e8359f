// Package httpmw provides HTTP middleware for the content server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, recovery, request ID, client IP extraction, rate
// limiting, OTEL tracing, metrics, structured logging, and chi router.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. Request bodies and user-supplied header values
// are intentionally excluded from logs to prevent PII leaks and log
// injection.
package httpmw
