package httpproto

// Form holds the parsed multipart payload of a predict request (spec.md
// section 3, "HttpContext"). Username/Password are carried for parity
// with the source project's form record even though no route in this
// server currently authenticates; they are populated only if present.
type Form struct {
	ImageData []byte
	Username  string
	Password  string
}

// Context is the per-request container stored as a Connection's opaque
// user Context: one Request, one Response, and an optional parsed Form.
type Context struct {
	Req  *Request
	Resp *Response
	Form *Form
}

// NewContext returns a fresh Context with a zero-valued Request/Response.
func NewContext() *Context {
	return &Context{
		Req:  NewRequest(),
		Resp: NewResponse(),
	}
}

// Reset returns the context to construction defaults for reuse on a
// keep-alive connection's next request.
func (c *Context) Reset() {
	c.Req.Reset()
	c.Resp = NewResponse()
	c.Form = nil
}
