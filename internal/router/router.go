// Package router implements the middleware chain and route table of
// spec.md section 4.10 (C11), grounded on the source project's
// http/router.cc and http/middleware.cc. The chain is driven by an
// explicit captured-index continuation rather than exceptions or
// goroutine suspension (spec.md section 9, "Coroutine-like control flow
// in the router").
package router

import (
	"github.com/vldzyzy/boneserver/internal/httpproto"
	"github.com/vldzyzy/boneserver/internal/tcp"
)

// Next is the continuation a Middleware calls to advance the chain. It
// may be called zero or one times; calling it more than once is
// undefined (spec.md section 4.10).
type Next func()

// Middleware is one composable stage of request processing.
type Middleware func(ctx *httpproto.Context, conn *tcp.Connection, next Next)

// Router maps "METHOD:path" to an ordered middleware chain and drives
// dispatch through an explicit continuation.
type Router struct {
	routes   map[string][]Middleware
	notFound []Middleware
}

// New returns a Router with the default not-found chain installed.
func New() *Router {
	return &Router{
		routes:   make(map[string][]Middleware),
		notFound: []Middleware{notFoundMiddleware},
	}
}

func key(method, path string) string { return method + ":" + path }

// AddRoute registers an ordered middleware chain under method+path
// (exact, case-sensitive match, spec.md section 3, "Route Key").
func (r *Router) AddRoute(method, path string, chain ...Middleware) {
	r.routes[key(method, path)] = chain
}

// Route looks up the chain for (ctx.Req.Method, ctx.Req.Path); on miss
// it uses the default not-found chain. It builds a zero-initialized
// index and drives next() forward one middleware at a time.
func (r *Router) Route(ctx *httpproto.Context, conn *tcp.Connection) {
	chain, ok := r.routes[key(ctx.Req.Method, ctx.Req.Path)]
	if !ok {
		chain = r.notFound
	}

	idx := -1
	var next Next
	next = func() {
		idx++
		if idx >= len(chain) {
			return
		}
		chain[idx](ctx, conn, next)
	}
	next()
}

func notFoundMiddleware(ctx *httpproto.Context, _ *tcp.Connection, _ Next) {
	ctx.Resp.Status = 404
	ctx.Resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	ctx.Resp.Body = []byte("404 Not Found")
}
