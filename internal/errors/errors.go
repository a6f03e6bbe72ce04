// Package errors attaches a stack trace at the point of failure.
// github.com/go-errors/errors does the heavy lifting; this wrapper keeps
// nil in, nil out and never re-wraps an error that already carries a
// trace, so ErrorStack always points at the origin.
package errors

import (
	"runtime"

	errorsGo "github.com/go-errors/errors"
)

// New wraps obj with a stack trace captured at the caller.
func New(obj any) *errorsGo.Error {
	if obj == nil {
		return nil
	}
	if errGo, ok := obj.(*errorsGo.Error); ok {
		return errGo
	}
	return errorsGo.Wrap(obj, 1)
}

// Errorf formats like fmt.Errorf, %w included, and attaches a trace.
func Errorf(format string, a ...any) *errorsGo.Error { return errorsGo.Errorf(format, a...) }

// WrapPrefix prepends prefix to the message, skipping skip frames above
// the caller for the trace.
func WrapPrefix(e any, prefix string, skip int) *errorsGo.Error {
	return errorsGo.WrapPrefix(e, prefix, skip+1)
}

// NilParam reports an error naming the calling function when any argument
// is nil, for use at the top of constructors.
func NilParam(args ...any) error {
	for i := range args {
		if args[i] != nil {
			continue
		}
		msg := `nil parameter`
		if pc, _, _, ok := runtime.Caller(1); ok {
			msg += `: ` + runtime.FuncForPC(pc).Name() + `()`
		}
		return errorsGo.Wrap(msg, 1)
	}
	return nil
}
