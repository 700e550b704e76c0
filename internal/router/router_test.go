package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vldzyzy/boneserver/internal/httpproto"
	"github.com/vldzyzy/boneserver/internal/tcp"
)

func TestRouteDispatchesRegisteredChainInOrder(t *testing.T) {
	r := New()
	var order []string

	r.AddRoute("GET", "/a",
		func(ctx *httpproto.Context, conn *tcp.Connection, next Next) { order = append(order, "first"); next() },
		func(ctx *httpproto.Context, conn *tcp.Connection, next Next) { order = append(order, "second") },
	)

	ctx := httpproto.NewContext()
	ctx.Req.Method = "GET"
	ctx.Req.Path = "/a"
	r.Route(ctx, nil)

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRouteFallsBackToNotFound(t *testing.T) {
	r := New()
	ctx := httpproto.NewContext()
	ctx.Req.Method = "GET"
	ctx.Req.Path = "/missing"
	r.Route(ctx, nil)

	assert.Equal(t, 404, ctx.Resp.Status)
}

func TestMiddlewareNotCalledIfNextNotInvoked(t *testing.T) {
	r := New()
	called := false

	r.AddRoute("GET", "/short",
		func(ctx *httpproto.Context, conn *tcp.Connection, next Next) {},
		func(ctx *httpproto.Context, conn *tcp.Connection, next Next) { called = true },
	)

	ctx := httpproto.NewContext()
	ctx.Req.Method = "GET"
	ctx.Req.Path = "/short"
	r.Route(ctx, nil)

	assert.False(t, called)
}
