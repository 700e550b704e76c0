package httpproto

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/vldzyzy/boneserver/internal/buffer"
)

// Result is the three-way outcome of one Parse call against a Buffer,
// matching spec.md section 4.8.
type Result int

const (
	NeedMore Result = iota
	Ok
	BadRequest
)

const maxContentLength = 64 << 20 // 64 MiB, guards against a hostile Content-Length

// Parser is the incremental HTTP/1.1 state machine of spec.md section
// 4.8. It resumes from its previous position on every Parse call,
// tolerating arbitrary TCP segmentation: feeding the same byte stream
// split at any offsets yields the same final Request as one call
// (testable property 1).
type Parser struct {
	req *Request
}

// NewParser returns a Parser that will populate req.
func NewParser(req *Request) *Parser {
	return &Parser{req: req}
}

// Parse drives the state machine forward as far as buf's readable
// bytes allow, consuming bytes from buf as it goes. It never consumes a
// partial, unterminated line: NeedMore leaves buf untouched from the
// caller's point of view for the unparsed remainder.
func (p *Parser) Parse(buf *buffer.Buffer) Result {
	for {
		switch p.req.state {
		case StateRequestLine:
			line, ok := extractLine(buf)
			if !ok {
				return NeedMore
			}
			if !p.parseRequestLine(line) {
				return BadRequest
			}
			p.req.state = StateHeaders

		case StateHeaders:
			line, ok := extractLine(buf)
			if !ok {
				return NeedMore
			}
			if len(line) == 0 {
				if p.req.ContentLength > 0 {
					p.req.state = StateBody
				} else {
					p.finish()
					return Ok
				}
				continue
			}
			if !p.parseHeaderLine(line) {
				return BadRequest
			}

		case StateBody:
			need := p.req.ContentLength - len(p.req.Body)
			if need <= 0 {
				p.finish()
				return Ok
			}
			avail := buf.ReadableBytes()
			if avail == 0 {
				return NeedMore
			}
			take := need
			if take > avail {
				take = avail
			}
			p.req.Body = append(p.req.Body, buf.RetrieveToBytes(take)...)
			if len(p.req.Body) == p.req.ContentLength {
				p.finish()
				return Ok
			}
			return NeedMore

		case StateFinish:
			return Ok
		}
	}
}

// extractLine scans buf's readable region for CRLF; if found, returns
// the line (excluding CRLF) and advances buf past it. If absent,
// returns false without consuming anything (spec.md section 4.8, "Line
// extraction").
func extractLine(buf *buffer.Buffer) ([]byte, bool) {
	data := buf.Peek()
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line := append([]byte(nil), data[:idx]...)
	buf.Retrieve(idx + 2)
	return line, true
}

func (p *Parser) parseRequestLine(line []byte) bool {
	parts := strings.Split(string(line), " ")
	if len(parts) != 3 {
		return false
	}
	method, path, version := parts[0], parts[1], parts[2]
	if method == "" || path == "" {
		return false
	}
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return false
	}
	p.req.Method = method
	p.req.Path = path
	p.req.Version = version
	return true
}

func (p *Parser) parseHeaderLine(line []byte) bool {
	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return false
	}
	key := strings.ToLower(strings.TrimSpace(string(line[:idx])))
	if key == "" {
		return false
	}
	value := strings.Trim(string(line[idx+1:]), " \t")
	p.req.Headers[key] = value

	if key == "content-length" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > maxContentLength {
			return false
		}
		p.req.ContentLength = n
	}
	return true
}

// finish derives KeepAlive per spec.md section 4.8: an explicit
// Connection header wins; otherwise HTTP/1.1 defaults to keep-alive and
// HTTP/1.0 defaults to close.
func (p *Parser) finish() {
	if v, ok := p.req.Headers["connection"]; ok {
		p.req.KeepAlive = strings.EqualFold(strings.TrimSpace(v), "keep-alive")
	} else {
		p.req.KeepAlive = p.req.Version == "HTTP/1.1"
	}
	p.req.state = StateFinish
}
