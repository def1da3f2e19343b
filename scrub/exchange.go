package scrub

import (
	"strconv"
	"strings"
	"time"
)

// Host abstracts the data-plane callbacks one exchange filter needs from
// the transport it runs inside. Implementations live next to each
// middleware adapter.
type Host interface {
	// RequestPath returns the request path without the query string.
	RequestPath() string
	// ResponseHeader returns a response header value, or "" when absent.
	ResponseHeader(name string) string
	// SetResponseHeader writes a response header. Only called during the
	// response-header phase; headers are final once the body phase begins.
	SetResponseHeader(name, value string)
	// RemoveResponseHeader deletes a response header. Same phase rule.
	RemoveResponseHeader(name string)
	// ResponseBody returns the accumulated response body of the given
	// length. Only called once, at end of stream.
	ResponseBody(length int) ([]byte, error)
	// ReplaceResponseBody substitutes the outbound body wholesale.
	ReplaceResponseBody(content []byte) error
}

// Diagnostic response headers. Informational only, attached during the
// response-header phase and never afterwards.
const (
	HeaderScrubActive  = "X-Scrub-Active"
	HeaderScrubOutcome = "X-Scrub-Outcome"
)

// Scrub outcome marker values.
const (
	OutcomeBypassed  = "bypassed"
	OutcomeNonText   = "non-text"
	OutcomeTooLarge  = "too-large"
	OutcomeWillScrub = "will-scrub"
)

type exchangeState int

const (
	stateCreated exchangeState = iota
	stateBypassed
	stateScrubbing
	stateGatedType
	stateGatedSize
	stateWillScrub
	stateAccumulating
	stateDone
)

// Exchange tracks one HTTP exchange through the scrub filter: the bypass
// decision at request headers, content-type and size gating at response
// headers, body accumulation, and the final redaction pass. Scrubbing can
// only ever be switched off after the initial decision, never back on.
// An Exchange is driven sequentially by a single exchange's callbacks and
// shares nothing mutable with other exchanges.
type Exchange struct {
	id       string
	f        *Filter
	host     Host
	state    exchangeState
	path     string
	encoding string

	accumulated int
	started     time.Time
}

// ID returns the exchange identifier used in diagnostics.
func (e *Exchange) ID() string {
	return e.id
}

// Scrubbing reports whether the adapter must keep buffering body chunks
// for this exchange instead of streaming them through.
func (e *Exchange) Scrubbing() bool {
	return e.state == stateWillScrub || e.state == stateAccumulating
}

// OnRequestHeaders runs the bypass decision. It must be called exactly
// once, before the response phase.
func (e *Exchange) OnRequestHeaders() {
	e.path = e.host.RequestPath()
	if bypassPath(e.f.cfg.BypassPaths, e.path) {
		e.state = stateBypassed
		e.f.logger.Debugf("[%s] bypassing scrub for path %s", e.id, e.path)
		return
	}
	e.state = stateScrubbing
}

// OnResponseHeaders gates on content type and declared length and attaches
// the diagnostic markers. This is the last point at which response headers
// may be touched.
func (e *Exchange) OnResponseHeaders() {
	e.host.SetResponseHeader(HeaderScrubActive, "true")

	if e.state == stateBypassed {
		e.host.SetResponseHeader(HeaderScrubOutcome, OutcomeBypassed)
		return
	}

	if ct := e.host.ResponseHeader("content-type"); ct != "" && !textualContentType(ct) {
		e.state = stateGatedType
		e.host.SetResponseHeader(HeaderScrubOutcome, OutcomeNonText)
		e.f.logger.Debugf("[%s] skipping non-text content type %q", e.id, ct)
		return
	}

	if cl := e.host.ResponseHeader("content-length"); cl != "" {
		// A length that does not parse means length unknown; fail open.
		if size, err := strconv.Atoi(cl); err == nil && size > e.f.cfg.MaxBodyBytes {
			e.state = stateGatedSize
			e.host.SetResponseHeader(HeaderScrubOutcome, OutcomeTooLarge)
			e.f.logger.Warnf("[%s] body too large (%d bytes), skipping scrub", e.id, size)
			return
		}
	}

	e.encoding = strings.ToLower(e.host.ResponseHeader("content-encoding"))

	// Redaction may change the body length, so a declared length must not
	// survive past this point.
	e.host.RemoveResponseHeader("Content-Length")
	e.host.SetResponseHeader(HeaderScrubOutcome, OutcomeWillScrub)
	e.state = stateWillScrub
}

// OnResponseBody records one delivered chunk. Chunks are counted, not read
// back, until end of stream; in any non-scrubbing state they are ignored.
// A body whose running total crosses the ceiling mid-stream switches the
// exchange to pass-through so the adapter can stop retaining it.
func (e *Exchange) OnResponseBody(chunkSize int, endOfStream bool) {
	if !e.Scrubbing() {
		return
	}

	e.accumulated += chunkSize

	if e.accumulated > e.f.cfg.MaxBodyBytes {
		e.state = stateGatedSize
		e.f.logger.Warnf("[%s] body too large (%d bytes), passing through", e.id, e.accumulated)
		return
	}

	if !endOfStream {
		e.state = stateAccumulating
		return
	}

	e.finalize()
}

// finalize retrieves the accumulated body, redacts it, and substitutes the
// result. Every failure path delivers the original content unchanged:
// availability wins over redaction completeness.
func (e *Exchange) finalize() {
	defer func() { e.state = stateDone }()

	body, err := e.host.ResponseBody(e.accumulated)
	if err != nil {
		e.f.logger.Warnf("[%s] failed to read response body: %v", e.id, err)
		return
	}

	codec, ok := lookupCodec(e.encoding)
	if !ok {
		e.f.logger.Debugf("[%s] unsupported content-encoding %q, passing through", e.id, e.encoding)
		return
	}

	plain := body
	if codec != codecIdentity {
		plain, err = decodeBody(body, codec)
		if err != nil {
			e.f.logger.Warnf("[%s] failed to decode %s body: %v", e.id, codec, err)
			return
		}
	}

	result := e.f.matcher.Redact(plain)
	if !result.Redacted {
		e.f.logger.Debugf("[%s] no pii patterns found", e.id)
		return
	}

	out := result.Content
	if codec != codecIdentity {
		out, err = encodeBody(out, codec)
		if err != nil {
			e.f.logger.Warnf("[%s] failed to re-encode %s body: %v", e.id, codec, err)
			return
		}
	}

	if err := e.host.ReplaceResponseBody(out); err != nil {
		e.f.logger.Warnf("[%s] failed to replace response body: %v", e.id, err)
		return
	}

	e.f.logger.Infof("[%s] redacted %d pii matches: %v", e.id, result.MatchCount, result.CategoryList())
	e.f.cfg.Audit.Add(AuditEvent{
		ExchangeID: e.id,
		Path:       e.path,
		MatchCount: result.MatchCount,
		Categories: result.CategoryList(),
		BodyBytes:  e.accumulated,
		Duration:   time.Since(e.started),
	})
}

// bypassPath evaluates path against the bypass list in order. An entry
// ending in '*' matches as a prefix, anything else matches exactly.
func bypassPath(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(path, pattern[:len(pattern)-1]) {
				return true
			}
		} else if path == pattern {
			return true
		}
	}
	return false
}

// textualContentType reports whether the content type carries a textual or
// structured-data marker worth scanning.
func textualContentType(ct string) bool {
	lower := strings.ToLower(ct)
	return strings.Contains(lower, "json") ||
		strings.Contains(lower, "text") ||
		strings.Contains(lower, "xml")
}
