// Package proxy assembles the reverse proxy: routing rules pick an
// upstream, the scrub filter rewrites PII out of its responses.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/edgescrub/edgescrub-go/nethttp"
	"github.com/edgescrub/edgescrub-go/route"
	"github.com/edgescrub/edgescrub-go/scrub"
)

// Config wires one proxy instance.
type Config struct {
	// Upstreams maps target labels to base URLs. The label chosen by
	// the router selects the upstream. A routed label without its own
	// entry goes to the default target's upstream with the label kept
	// as a path prefix, so one backend can host several variants.
	Upstreams map[string]string

	Filter *scrub.Filter
	Router *route.Router
}

// Handler is the assembled middleware chain around the reverse proxy.
type Handler struct {
	upstreams map[string]*url.URL
	router    *route.Router
	chain     http.Handler
}

// New builds the proxy handler. At least the default target must have an
// upstream URL.
func New(cfg Config) (*Handler, error) {
	if cfg.Router == nil {
		cfg.Router = route.New(route.DefaultConfig())
	}

	upstreams := make(map[string]*url.URL, len(cfg.Upstreams))
	for label, raw := range cfg.Upstreams {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", label, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("upstream %q: %q is not an absolute URL", label, raw)
		}
		upstreams[label] = u
	}
	if _, ok := upstreams[cfg.Router.DefaultTarget()]; !ok {
		return nil, fmt.Errorf("no upstream for default target %q", cfg.Router.DefaultTarget())
	}

	h := &Handler{upstreams: upstreams, router: cfg.Router}

	rp := &httputil.ReverseProxy{Rewrite: h.rewrite}

	var chain http.Handler = rp
	chain = nethttp.Middleware(cfg.Filter)(chain)
	chain = route.Middleware(cfg.Router)(chain)
	h.chain = chain

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

// rewrite points the outbound request at the chosen upstream. The routing
// middleware has already prefixed the path with the target label; when
// that label has a dedicated upstream the prefix is stripped off again so
// each backend sees its own path space.
func (h *Handler) rewrite(pr *httputil.ProxyRequest) {
	path := pr.In.URL.Path
	target, rest := h.splitTarget(path)

	upstream := h.upstreams[h.router.DefaultTarget()]
	if u, ok := h.upstreams[target]; ok && target != h.router.DefaultTarget() {
		upstream = u
		path = rest
	}

	pr.SetURL(upstream)
	pr.Out.URL.Path = joinPath(upstream.Path, path)
	pr.SetXForwarded()
}

// splitTarget peels a leading target label off the path when a configured
// upstream matches it.
func (h *Handler) splitTarget(path string) (string, string) {
	label, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if _, ok := h.upstreams[label]; ok {
		return label, "/" + rest
	}
	return h.router.DefaultTarget(), path
}

func joinPath(base, p string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return base + p
}
