package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/xerrors"
)

// Recover converts handler panics into logged 500s. onPanic, if set, runs
// after logging (metrics counter). If the response has already started
// streaming there is nothing safe to write, so only the log entry is
// emitted.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// net/http uses this sentinel for client-gone aborts
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := xerrors.Newf("panic: %v", rec)
				logger.Error(r.Context(), err, "recovered handler panic",
					"url.path", r.URL.Path,
					"http.request.method", r.Method,
					"stack", string(debug.Stack()),
				)
				if onPanic != nil {
					onPanic()
				}
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
