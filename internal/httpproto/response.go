package httpproto

import (
	"fmt"

	"github.com/vldzyzy/boneserver/internal/buffer"
)

var reasonPhrases = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	500: "Internal Server Error",
}

// Response is the status/headers/body triple of spec.md section 3,
// materialized into a Buffer by AppendToBuffer.
type Response struct {
	Status    int
	Reason    string // overrides the reasonPhrases table entry if non-empty
	Headers   map[string]string
	Body      []byte
	KeepAlive bool

	// Deferred marks a response whose bytes are sent later by another
	// goroutine or callback (e.g. an inference completion), rather than
	// by the synchronous send that normally follows routing.
	Deferred bool
}

// NewResponse returns a Response with an empty header map.
func NewResponse() *Response {
	return &Response{Headers: make(map[string]string)}
}

func (r *Response) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	if p, ok := reasonPhrases[r.Status]; ok {
		return p
	}
	return ""
}

// SetHeader stores a header value; duplicate keys are not supported,
// last write wins (spec.md section 4.9).
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
}

// AppendToBuffer writes the status line, headers, an injected
// Content-Length and Connection header, and the body into buf, per
// spec.md section 4.9.
func (r *Response) AppendToBuffer(buf *buffer.Buffer) {
	buf.Append([]byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.Status, r.reason())))

	for k, v := range r.Headers {
		buf.Append([]byte(fmt.Sprintf("%s: %s\r\n", k, v)))
	}

	buf.Append([]byte(fmt.Sprintf("Content-Length: %d\r\n", len(r.Body))))

	conn := "close"
	if r.KeepAlive {
		conn = "keep-alive"
	}
	buf.Append([]byte(fmt.Sprintf("Connection: %s\r\n\r\n", conn)))

	if len(r.Body) > 0 {
		buf.Append(r.Body)
	}
}

// Bytes renders the response into a standalone byte slice; the HTTP
// application glue sends every routed response through it.
func (r *Response) Bytes() []byte {
	b := buffer.New()
	r.AppendToBuffer(b)
	return b.RetrieveAllToBytes()
}
