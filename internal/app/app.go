// Package app wires the reactor/TCP stack, HTTP parser, router, static
// cache, and inference dispatcher into the single running server of
// spec.md section 4.13 (C14), grounded on the source project's
// httpapplication.cc/.h construction sequence: walk the static root,
// register one route per cached file, register the predict route, and
// drive every connection's message loop against the incremental parser.
package app

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vldzyzy/boneserver/internal/apperr"
	"github.com/vldzyzy/boneserver/internal/httpproto"
	"github.com/vldzyzy/boneserver/internal/inference"
	"github.com/vldzyzy/boneserver/internal/logging"
	"github.com/vldzyzy/boneserver/internal/metrics"
	"github.com/vldzyzy/boneserver/internal/router"
	"github.com/vldzyzy/boneserver/internal/staticcache"
	"github.com/vldzyzy/boneserver/internal/tcp"
)

const badRequestLiteral = "HTTP/1.1 400 Bad Request\r\n\r\n"

// App is the fully wired HTTP application: a TcpServer driving an HTTP
// parser and router over a static cache and inference dispatcher.
type App struct {
	server     *tcp.Server
	router     *router.Router
	cache      *staticcache.Cache
	dispatcher *inference.Dispatcher
	metrics    *metrics.Registry
	log        *logging.Logger
}

// New constructs the application: it walks staticRoot into a Cache,
// registers a GET route per cached file plus POST /predict and GET
// /healthz, and binds the TcpServer's callbacks to the per-connection
// HTTP message loop.
func New(name, addr string, numIOLoops int, staticRoot string, cacheCapacity int, dispatcher *inference.Dispatcher, reg *metrics.Registry) (*App, error) {
	cache, err := staticcache.New(staticRoot, cacheCapacity)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStaticRoot, err)
	}

	srv, err := tcp.NewServer(name, addr, numIOLoops, true)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrBind, err)
	}

	a := &App{
		server:     srv,
		router:     router.New(),
		cache:      cache,
		dispatcher: dispatcher,
		metrics:    reg,
		log:        logging.Get(),
	}

	for _, p := range cache.Paths() {
		a.router.AddRoute("GET", p, a.staticMiddleware)
	}
	a.router.AddRoute("GET", "/healthz", healthzMiddleware)
	a.router.AddRoute("POST", "/predict", a.parseMultipart, a.predictHandler)

	srv.SetCallbacks(a.onConnection, a.onMessage, nil)
	return a, nil
}

// Start runs the acceptor loop; it blocks until Stop is called from
// another goroutine or signal handler.
func (a *App) Start() { a.server.Start() }

// Stop tears down the TcpServer and the inference dispatcher.
func (a *App) Stop() {
	a.server.Stop()
	a.dispatcher.Stop()
}

func (a *App) onConnection(c *tcp.Connection) {
	if !c.IsConnected() {
		return
	}
	c.Context = httpproto.NewContext()
	if a.metrics != nil {
		a.metrics.ConnectionsAccepted.Inc()
	}
}

// onMessage drives the incremental parser against the connection's
// input buffer exactly per spec.md section 4.13's per-connection loop.
func (a *App) onMessage(c *tcp.Connection) {
	ctx, _ := c.Context.(*httpproto.Context)
	if ctx == nil {
		return
	}

	for {
		parser := httpproto.NewParser(ctx.Req)
		result := parser.Parse(c.Input())

		switch result {
		case httpproto.NeedMore:
			return

		case httpproto.BadRequest:
			c.Send([]byte(badRequestLiteral))
			c.Shutdown()
			return

		case httpproto.Ok:
			ctx.Resp.KeepAlive = ctx.Req.KeepAlive
			keepAlive := ctx.Req.KeepAlive
			a.router.Route(ctx, c)

			if !ctx.Resp.Deferred {
				c.Send(ctx.Resp.Bytes())
			}

			if keepAlive {
				ctx.Reset()
				continue
			}
			// A deferred (predict) response is still in flight; its own
			// completion callback shuts the connection down once sent.
			if !ctx.Resp.Deferred {
				c.Shutdown()
			}
			return
		}
	}
}

func healthzMiddleware(ctx *httpproto.Context, _ *tcp.Connection, _ router.Next) {
	ctx.Resp.Status = 200
	ctx.Resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	ctx.Resp.Body = []byte("ok")
}

// staticMiddleware serves the cached entry for the matched route,
// revalidating against disk per spec.md section 4.11.
func (a *App) staticMiddleware(ctx *httpproto.Context, _ *tcp.Connection, _ router.Next) {
	entry, ok := a.cache.Get(ctx.Req.Path)
	if !ok {
		ctx.Resp.Status = 404
		ctx.Resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
		ctx.Resp.Body = []byte("404 Not Found")
		return
	}

	ctx.Resp.Status = 200
	ctx.Resp.SetHeader("Content-Type", staticcache.MimeType(ctx.Req.Path))
	ctx.Resp.Body = entry.Bytes
}

// parseMultipart extracts the boundary and the single image part per
// spec.md section 4.13's algorithm. On any malformation it leaves
// ctx.Form nil and proceeds to the next middleware, which turns that
// into a 400 JSON error.
func (a *App) parseMultipart(ctx *httpproto.Context, conn *tcp.Connection, next router.Next) {
	boundary, ok := extractBoundary(ctx.Req.Header("content-type"))
	if ok {
		if img, ok := extractImagePart(ctx.Req.Body, boundary); ok {
			ctx.Form = &httpproto.Form{ImageData: img}
		}
	}
	next()
}

func extractBoundary(contentType string) (string, bool) {
	const marker = "boundary="
	idx := strings.Index(contentType, marker)
	if idx < 0 {
		return "", false
	}
	b := contentType[idx+len(marker):]
	if semi := strings.IndexByte(b, ';'); semi >= 0 {
		b = b[:semi]
	}
	b = strings.Trim(b, "\"")
	if b == "" {
		return "", false
	}
	return b, true
}

// extractImagePart implements spec.md section 4.13's multipart
// algorithm: locate the first "--boundary" followed by a CRLF CRLF
// header-block terminator, then take bytes up to (but excluding) the
// CRLF preceding the next boundary marker.
func extractImagePart(body []byte, boundary string) ([]byte, bool) {
	marker := []byte("--" + boundary)
	start := bytes.Index(body, marker)
	if start < 0 {
		return nil, false
	}

	headerEnd := bytes.Index(body[start:], []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return nil, false
	}
	dataStart := start + headerEnd + len("\r\n\r\n")

	nextMarker := bytes.Index(body[dataStart:], marker)
	if nextMarker < 0 {
		return nil, false
	}
	dataEnd := dataStart + nextMarker

	dataEnd = trimTrailingCRLF(body, dataStart, dataEnd)
	if dataEnd <= dataStart {
		return nil, false
	}
	return body[dataStart:dataEnd], true
}

func trimTrailingCRLF(body []byte, start, end int) int {
	if end-start >= 2 && body[end-2] == '\r' && body[end-1] == '\n' {
		return end - 2
	}
	return end
}

// predictHandler implements spec.md section 4.13's predict handler: a
// missing image yields 400; otherwise an InferenceTask is posted whose
// completion re-enters the connection's own loop before touching the
// socket.
func (a *App) predictHandler(ctx *httpproto.Context, conn *tcp.Connection, _ router.Next) {
	if ctx.Form == nil || len(ctx.Form.ImageData) == 0 {
		writeJSONError(ctx, 400, "missing image data")
		return
	}

	img := ctx.Form.ImageData
	keepAlive := ctx.Req.KeepAlive

	err := a.dispatcher.Submit(inference.Task{
		RawImage: img,
		OnComplete: func(result inference.Result) {
			conn.Loop().RunInLoop(func() {
				if !conn.IsConnected() {
					return
				}
				body, err := inference.EncodeResult(result)
				if err != nil {
					a.log.Errorf("predict: encode result: %v", err)
					return
				}
				conn.Send(buildRawJSONResponse(200, keepAlive, body))
				if !keepAlive {
					conn.Shutdown()
				}
			})
		},
	})
	if err != nil {
		writeJSONError(ctx, 500, "inference queue unavailable")
		return
	}

	// The real response travels via conn.Send from OnComplete above, once
	// the dispatcher finishes; suppress onMessage's synchronous send.
	ctx.Resp.Deferred = true
}

func writeJSONError(ctx *httpproto.Context, status int, message string) {
	ctx.Resp.Status = status
	ctx.Resp.SetHeader("Content-Type", "application/json")
	ctx.Resp.Body = []byte(fmt.Sprintf(`{"error":%q}`, message))
}

func buildRawJSONResponse(status int, keepAlive bool, body []byte) []byte {
	resp := httpproto.NewResponse()
	resp.Status = status
	resp.KeepAlive = keepAlive
	resp.SetHeader("Content-Type", "application/json")
	resp.Body = body
	return resp.Bytes()
}
