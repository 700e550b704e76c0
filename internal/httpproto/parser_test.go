package httpproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vldzyzy/boneserver/internal/buffer"
)

func parseAll(t *testing.T, chunks ...[]byte) (*Request, Result) {
	t.Helper()
	req := NewRequest()
	p := NewParser(req)
	buf := buffer.New()

	var last Result
	for _, c := range chunks {
		buf.Append(c)
		last = p.Parse(buf)
		if last != NeedMore {
			break
		}
	}
	return req, last
}

func TestParseWholeRequestOneShot(t *testing.T) {
	raw := []byte("GET /index.html HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n")
	req, res := parseAll(t, raw)
	require.Equal(t, Ok, res)
	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.True(t, req.KeepAlive)
}

func TestParseArbitrarySegmentationMatchesOneShot(t *testing.T) {
	raw := "POST /predict HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"

	whole, resWhole := parseAll(t, []byte(raw))
	require.Equal(t, Ok, resWhole)

	for split := 1; split < len(raw); split++ {
		fragmented, resFrag := parseAll(t, []byte(raw[:split]), []byte(raw[split:]))
		require.Equal(t, Ok, resFrag, "split at %d", split)
		assert.Equal(t, whole.Method, fragmented.Method, "split at %d", split)
		assert.Equal(t, whole.Path, fragmented.Path, "split at %d", split)
		assert.Equal(t, whole.Version, fragmented.Version, "split at %d", split)
		assert.Equal(t, string(whole.Body), string(fragmented.Body), "split at %d", split)
	}
}

func TestMalformedRequestLine(t *testing.T) {
	_, res := parseAll(t, []byte("NOT HTTP\r\n\r\n"))
	assert.Equal(t, BadRequest, res)
}

func TestContentLengthLargerThanBodyNeedsMore(t *testing.T) {
	_, res := parseAll(t, []byte("GET / HTTP/1.1\r\nContent-Length: 10\r\n\r\nabc"))
	assert.Equal(t, NeedMore, res)
}

func TestConnectionCloseOverridesDefault(t *testing.T) {
	req, res := parseAll(t, []byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n"))
	require.Equal(t, Ok, res)
	assert.False(t, req.KeepAlive)
}

func TestResetIsIndistinguishableFromFresh(t *testing.T) {
	req, res := parseAll(t, []byte("GET /a HTTP/1.1\r\nContent-Length: 1\r\n\r\nx"))
	require.Equal(t, Ok, res)
	req.Reset()

	fresh := NewRequest()
	assert.Equal(t, fresh.Method, req.Method)
	assert.Equal(t, fresh.Path, req.Path)
	assert.Equal(t, fresh.ContentLength, req.ContentLength)
	assert.Equal(t, len(fresh.Headers), len(req.Headers))
}

func TestResponseAppendToBufferLayout(t *testing.T) {
	resp := NewResponse()
	resp.Status = 200
	resp.KeepAlive = true
	resp.Body = []byte("<html/>")
	resp.SetHeader("Content-Type", "text/html; charset=utf-8")

	buf := buffer.New()
	resp.AppendToBuffer(buf)

	raw := buf.RetrieveAllToBytes()

	assert.Contains(t, string(raw), "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, string(raw), "Content-Length: 7\r\n")
	assert.Contains(t, string(raw), "Connection: keep-alive\r\n")
	assert.Contains(t, string(raw), "<html/>")
}
