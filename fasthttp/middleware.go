// Package fasthttp provides middleware that scrubs PII from responses of
// github.com/valyala/fasthttp handlers.
package fasthttp

import (
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/edgescrub/edgescrub-go/scrub"
)

// Middleware wraps a fasthttp handler with the scrub filter. fasthttp
// hands the middleware a fully materialized response, so the body phase
// collapses into a single end-of-stream event after the handler runs.
func Middleware(filter *scrub.Filter, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	if filter == nil {
		return next
	}

	return func(ctx *fasthttp.RequestCtx) {
		host := &ctxHost{ctx: ctx}
		ex := filter.NewExchange(host)

		ex.OnRequestHeaders()
		next(ctx)

		ex.OnResponseHeaders()
		if ex.Scrubbing() {
			ex.OnResponseBody(len(ctx.Response.Body()), true)
		}
	}
}

// ctxHost adapts a fasthttp request context to the exchange host contract.
type ctxHost struct {
	ctx *fasthttp.RequestCtx
}

func (h *ctxHost) RequestPath() string {
	return string(h.ctx.Path())
}

func (h *ctxHost) ResponseHeader(name string) string {
	return string(h.ctx.Response.Header.Peek(name))
}

func (h *ctxHost) SetResponseHeader(name, value string) {
	h.ctx.Response.Header.Set(name, value)
}

func (h *ctxHost) RemoveResponseHeader(name string) {
	// fasthttp restates Content-Length from the final body on write, so
	// deleting here is only about not carrying a stale declared value.
	h.ctx.Response.Header.Del(name)
}

func (h *ctxHost) ResponseBody(length int) ([]byte, error) {
	body := h.ctx.Response.Body()
	if length > len(body) {
		return nil, fmt.Errorf("response body is %d bytes, want %d", len(body), length)
	}
	return body[:length], nil
}

func (h *ctxHost) ReplaceResponseBody(content []byte) error {
	h.ctx.Response.SetBody(content)
	return nil
}

var _ scrub.Host = (*ctxHost)(nil)
