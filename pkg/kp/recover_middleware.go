package kp

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sing3demons/oryfm/pkg/logAction"
	"github.com/sing3demons/oryfm/pkg/logger"
)

// RecoverMiddleware turns a panic into a 500 and logs it on the request logger
// when one is present.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}

			if lg, ok := r.Context().Value(logger.LoggerKey).(*logger.Logger); ok && lg != nil {
				lg.Error(logAction.EXCEPTION("panic recovered"), map[string]any{
					"method":   r.Method,
					"path":     r.URL.Path,
					"panic":    err.Error(),
					"duration": time.Since(start).Milliseconds(),
					"stack":    string(debug.Stack()),
				})
				lg.FlushError(http.StatusInternalServerError, "internal_server_error")
			}

			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(http.StatusText(http.StatusInternalServerError)))
		}()

		next.ServeHTTP(w, r)
	})
}
