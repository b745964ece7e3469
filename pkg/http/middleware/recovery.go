package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"

	xlogger "NewsSignal/pkg/logger"
)

const maxStack = 4 << 10

// PanicError carries a recovered panic up to the error handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Recover turns a handler panic into a *PanicError so the server's error
// handler renders it like any other failure.
func Recover(l *xlogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = xlogger.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				buf := make([]byte, maxStack)
				buf = buf[:runtime.Stack(buf, false)]
				l.Error("panic recovered",
					xlogger.String("route", c.Path()),
					xlogger.String("request_id", GetRequestID(c)),
					xlogger.Any("panic", r),
					xlogger.String("stack", string(buf)))
				err = &PanicError{Value: r}
			}()
			return next(c)
		}
	}
}
