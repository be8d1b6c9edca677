package events

import (
	"context"
	"os"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	documentIDKey
	operationKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithDocumentID tags the context logger with a document ID.
func WithDocumentID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("document_id", id)
	ctx = context.WithValue(ctx, documentIDKey, id)
	return WithLogger(ctx, logger)
}

// WithOperation tags the context logger with the running operation name.
func WithOperation(ctx context.Context, op string) context.Context {
	logger := FromContext(ctx).WithField("op", op)
	ctx = context.WithValue(ctx, operationKey, op)
	return WithLogger(ctx, logger)
}

// GetDocumentID retrieves the document ID from context.
func GetDocumentID(ctx context.Context) string {
	if id, ok := ctx.Value(documentIDKey).(string); ok {
		return id
	}
	return ""
}

// GetOperation retrieves the operation name from context.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}

var defaultLogger = &Logger{
	mu:     &sync.Mutex{},
	level:  InfoLevel,
	format: "text",
	output: os.Stderr,
	fields: make(map[string]interface{}),
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
