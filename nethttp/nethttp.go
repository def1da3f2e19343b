// Package nethttp provides net/http middleware that scrubs PII from
// response bodies before they leave the server.
package nethttp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/valyala/bytebufferpool"

	"github.com/edgescrub/edgescrub-go/scrub"
)

// Middleware wraps a handler with the scrub filter. Responses the filter
// decides to scan are buffered in full and rewritten before transmission;
// everything else streams through untouched.
func Middleware(filter *scrub.Filter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if filter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newScrubWriter(w, filter, r)
			sw.exchange.OnRequestHeaders()
			next.ServeHTTP(sw, r)
			sw.finish()
		})
	}
}

// scrubWriter wraps the ResponseWriter and doubles as the exchange's host:
// it holds the accumulated body and applies the header and body mutations
// the exchange asks for.
type scrubWriter struct {
	http.ResponseWriter
	exchange *scrub.Exchange
	req      *http.Request

	buf         *bytebufferpool.ByteBuffer
	status      int
	headerPhase bool // response-header phase has run
	sentHeader  bool // status line written downstream
	buffering   bool
	hijacked    bool
	replaced    []byte
	didReplace  bool
}

func newScrubWriter(w http.ResponseWriter, filter *scrub.Filter, r *http.Request) *scrubWriter {
	sw := &scrubWriter{ResponseWriter: w, req: r}
	sw.exchange = filter.NewExchange(sw)
	return sw
}

func (sw *scrubWriter) WriteHeader(code int) {
	if sw.headerPhase {
		return
	}
	sw.headerPhase = true
	sw.status = code

	// Header mutations (markers, Content-Length removal) happen here,
	// before anything reaches the wire. Headers are final afterwards.
	sw.exchange.OnResponseHeaders()
	sw.buffering = sw.exchange.Scrubbing()

	if sw.buffering {
		// Hold the status back; it is written together with the
		// (possibly rewritten) body so net/http can restate the length.
		sw.buf = bytebufferpool.Get()
		return
	}

	sw.ResponseWriter.WriteHeader(code)
	sw.sentHeader = true
}

func (sw *scrubWriter) Write(b []byte) (int, error) {
	if !sw.headerPhase {
		sw.WriteHeader(http.StatusOK)
	}

	if !sw.buffering {
		return sw.ResponseWriter.Write(b)
	}

	sw.buf.Write(b) //nolint:errcheck // ByteBuffer.Write cannot fail
	sw.exchange.OnResponseBody(len(b), false)

	if !sw.exchange.Scrubbing() {
		// The running total crossed the ceiling; stop retaining and
		// stream from here on.
		if err := sw.flushBuffered(); err != nil {
			return len(b), err
		}
	}

	return len(b), nil
}

// finish closes the body phase once the handler returns. For a buffered
// exchange this is the end-of-stream event: the exchange scans the
// accumulated body and may replace it before anything is transmitted.
func (sw *scrubWriter) finish() {
	if sw.hijacked {
		return
	}
	if !sw.headerPhase {
		sw.WriteHeader(http.StatusOK)
	}
	if !sw.buffering {
		return
	}

	sw.exchange.OnResponseBody(0, true)

	body := sw.buf.B
	if sw.didReplace {
		body = sw.replaced
	}

	sw.ResponseWriter.WriteHeader(sw.status)
	sw.sentHeader = true
	if len(body) > 0 {
		sw.ResponseWriter.Write(body) //nolint:errcheck // nothing left to do for the client
	}

	sw.releaseBuffer()
}

func (sw *scrubWriter) flushBuffered() error {
	sw.buffering = false
	sw.ResponseWriter.WriteHeader(sw.status)
	sw.sentHeader = true
	_, err := sw.ResponseWriter.Write(sw.buf.B)
	sw.releaseBuffer()
	return err
}

func (sw *scrubWriter) releaseBuffer() {
	if sw.buf != nil {
		bytebufferpool.Put(sw.buf)
		sw.buf = nil
	}
	sw.buffering = false
}

// Host implementation.

func (sw *scrubWriter) RequestPath() string {
	return sw.req.URL.Path
}

func (sw *scrubWriter) ResponseHeader(name string) string {
	return sw.Header().Get(name)
}

func (sw *scrubWriter) SetResponseHeader(name, value string) {
	if !sw.sentHeader {
		sw.Header().Set(name, value)
	}
}

func (sw *scrubWriter) RemoveResponseHeader(name string) {
	if !sw.sentHeader {
		sw.Header().Del(name)
	}
}

func (sw *scrubWriter) ResponseBody(length int) ([]byte, error) {
	if sw.buf == nil {
		return nil, errors.New("response body not buffered")
	}
	if length > len(sw.buf.B) {
		return nil, fmt.Errorf("accumulated body is %d bytes, want %d", len(sw.buf.B), length)
	}
	return sw.buf.B[:length], nil
}

func (sw *scrubWriter) ReplaceResponseBody(content []byte) error {
	if sw.buf == nil {
		return errors.New("response body not buffered")
	}
	sw.replaced = content
	sw.didReplace = true
	return nil
}

// Flush is suppressed while a response is being accumulated; a partially
// scanned body must never reach the client.
func (sw *scrubWriter) Flush() {
	if sw.buffering {
		return
	}
	if flusher, ok := sw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (sw *scrubWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, rw, err := hijacker.Hijack()
	if err == nil {
		sw.hijacked = true
		sw.releaseBuffer()
	}
	return conn, rw, err
}

var (
	_ http.Flusher  = (*scrubWriter)(nil)
	_ http.Hijacker = (*scrubWriter)(nil)
	_ scrub.Host    = (*scrubWriter)(nil)
)
