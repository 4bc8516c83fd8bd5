package api

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// hijackRecorder is a ResponseRecorder that also supports connection
// hijacking, like the real server's ResponseWriter does.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (r *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.hijacked = true
	client, server := net.Pipe()
	server.Close() //nolint:errcheck
	return client, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func TestLoggingMiddleware_PreservesHijacker(t *testing.T) {
	srv := testServer(t)

	var hijackErr error
	handler := srv.loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer does not implement http.Hijacker")
		}
		conn, _, err := hj.Hijack()
		hijackErr = err
		if conn != nil {
			conn.Close() //nolint:errcheck
		}
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if hijackErr != nil {
		t.Fatalf("hijack through middleware: %v", hijackErr)
	}
	if !rec.hijacked {
		t.Error("hijack never reached the underlying writer")
	}
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("expected error when the underlying writer cannot hijack")
	}
}
