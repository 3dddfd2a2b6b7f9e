package s3api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"s3box/internal/s3err"
	"s3box/internal/sigv4"
)

// responseWriterWrapper captures the status code written, mirroring
// eteran-silo's internal/silo/router.go ResponseWriterWrapper.
type responseWriterWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWriterWrapper) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// LogRequest logs method, path, status, duration and remote IP for every
// request, escalating level with the response status.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriterWrapper{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(wrapped, r)
		elapsed := time.Since(start)

		attrs := []any{
			slog.Group("request", "method", r.Method, "path", r.URL.Path, "status", wrapped.status,
				"duration_ms", float64(elapsed.Nanoseconds())/float64(time.Millisecond)),
			slog.Group("client", "ip", r.RemoteAddr),
		}
		switch {
		case wrapped.status >= 500:
			slog.Error("request", attrs...)
		case wrapped.status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

// Recoverer turns a panicking handler into a 500 InternalError instead of
// killing the connection, matching eteran-silo's internal/core/middleware.go.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic in handler", "err", rec)
				s3err.Write(w, xid.New().String(), s3err.ErrInternalError, r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// SlashFix collapses a doubled leading slash only, e.g. a client or
// intermediary turning "/bucket/key" into "//bucket/key". Everything past
// the first path segment is the object key, and spec.md's key space
// explicitly allows repeated and trailing slashes as distinct, legitimate
// keys ("2024//report.pdf" is not the same object as "2024/report.pdf");
// collapsing slashes anywhere else would both corrupt the key and change
// the path out from under SigV4 verification, which signs the exact path
// the client sent.
func SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for len(r.URL.Path) > 1 && strings.HasPrefix(r.URL.Path, "//") {
			r.URL.Path = r.URL.Path[1:]
		}
		next.ServeHTTP(w, r)
	})
}

// authResult is what a successful authenticate() call hands the caller: the
// verified identity/credential plus whatever the handler needs to decide
// authorization for its specific (action, resource) pair.
type authResult struct {
	*sigv4.Result
}

// authenticate verifies the request's signature and, unless it arrived via
// a presigned URL (which substitutes for authentication per spec), checks
// the credential's permission rules for (action, resource). On failure it
// writes the S3 error response itself and returns ok=false.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, action, resource string) (*authResult, bool) {
	requestID := xid.New().String()

	result, err := s.verifier.Verify(r)
	if err != nil {
		s3err.Write(w, requestID, s3err.MapError(err), r.URL.Path)
		return nil, false
	}

	if !result.Presigned && !result.Credential.Allow(action, resource) {
		s3err.Write(w, requestID, s3err.ErrAccessDenied, r.URL.Path)
		return nil, false
	}

	return &authResult{Result: result}, true
}

func requestID() string {
	return xid.New().String()
}
