package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

type jobCtxKey struct{}
type workspaceCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// idPattern constrains correlation ids; they end up in log indexes and
// HTTP headers, so only plain identifier characters are allowed.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ContextFields extracts correlation fields from ctx in a fixed order.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if id := JobIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("job.id", id))
	}
	if id := WorkspaceIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("workspace.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// WithJobID attaches a job id to ctx. Panics on a malformed id; ids are
// generated internally, so a bad one is a programming error.
func WithJobID(ctx context.Context, jobID string) context.Context {
	mustValidID(jobID, "job id")
	return context.WithValue(ctx, jobCtxKey{}, jobID)
}

// JobIDFromContext returns the job id or "".
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobCtxKey{}).(string)
	return id
}

// WithWorkspaceID attaches a workspace id to ctx.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	mustValidID(workspaceID, "workspace id")
	return context.WithValue(ctx, workspaceCtxKey{}, workspaceID)
}

// WorkspaceIDFromContext returns the workspace id or "".
func WorkspaceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(workspaceCtxKey{}).(string)
	return id
}

// WithRequestID attaches an HTTP request id to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	mustValidID(requestID, "request id")
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestCtxKey{}).(string)
	return id
}

func mustValidID(id, name string) {
	if !idPattern.MatchString(id) {
		panic(fmt.Sprintf("logging: invalid %s %q", name, id))
	}
}

// WithLogger stores a logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger from ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
