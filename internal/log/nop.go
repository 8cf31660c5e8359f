package log

import "context"

// nopLogger discards everything. Used as the default in constructors that
// accept an optional logger, and in tests.
type nopLogger struct{}

func (n nopLogger) With(kv ...any) Logger                                  { return n }
func (nopLogger) Debug(ctx context.Context, msg string, kv ...any)         {}
func (nopLogger) Info(ctx context.Context, msg string, kv ...any)          {}
func (nopLogger) Warn(ctx context.Context, msg string, kv ...any)          {}
func (nopLogger) Error(ctx context.Context, err error, msg string, kv ...any) {}
func (nopLogger) Sync() error                                              { return nil }

// Nop returns a no-op Logger.
func Nop() Logger { return nopLogger{} }
