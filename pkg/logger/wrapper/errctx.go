package wrap

import (
	"context"
	"errors"
)

// errorWithLogCtx is a custom error type that wraps an error and includes LogCtx
type errorWithLogCtx struct {
	err    error
	logCtx LogCtx
}

// errorWithLogCtx implements the error interface
func (e *errorWithLogCtx) Error() string {
	return e.err.Error()
}

// Unwrap allows unwrapping the original error
func (e *errorWithLogCtx) Unwrap() error {
	return e.err
}

// Error wraps err together with the LogCtx carried by ctx, so the
// context survives the trip up the call stack and can be re-attached
// at the logging site with ErrorCtx.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	lc := LogCtx{}
	if c, ok := ctx.Value(LogCtxKey).(LogCtx); ok {
		lc = c
	}
	return &errorWithLogCtx{err: err, logCtx: lc}
}

// ErrorCtx extracts the LogCtx from an error if it is of type errorWithLogCtx
func ErrorCtx(ctx context.Context, err error) context.Context {
	var e *errorWithLogCtx
	if errors.As(err, &e) && e != nil {
		return context.WithValue(ctx, LogCtxKey, e.logCtx)
	}
	return ctx
}
