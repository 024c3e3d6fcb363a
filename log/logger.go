package log

import "context"

// Logger is the application-level logging interface. Handlers and services
// that want an injected logger depend on this rather than on zerolog
// directly; packages with no injection needs use the zerolog global.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	Fatal(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	// With returns a new logger carrying additional structured fields.
	With(fields map[string]interface{}) Logger
}
