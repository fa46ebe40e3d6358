package errors

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// Recover converts a panic in the calling goroutine into an error stored in
// *errp. It must be deferred directly:
//
//	defer errors.Recover(logger, "download job", &err)
//
// A nil errp only logs.
func Recover(logger *zap.Logger, operation string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("Recovered from panic",
		zap.String("operation", operation),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()),
	)
	if errp != nil {
		*errp = NewPanicError(operation, r)
	}
}

// Go runs fn on a new goroutine; a panic inside fn is logged and swallowed
// so it cannot take down the process.
func Go(logger *zap.Logger, operation string, fn func()) {
	go func() {
		defer Recover(logger, operation, nil)
		fn()
	}()
}

// Safely calls fn and returns its error, or the recovered panic as an error.
func Safely(logger *zap.Logger, operation string, fn func() error) (err error) {
	defer Recover(logger, operation, &err)
	return fn()
}
