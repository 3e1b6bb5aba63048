package httpproto

import (
	"errors"
	"strconv"
	"strings"
)

// MaxHeaderBlockBytes bounds the request-line+headers search per
// spec.md §4.3: exceeding it before finding CRLFCRLF is a 400.
const MaxHeaderBlockBytes = 8 * 1024

var (
	ErrHeadersTooLarge  = errors.New("httpproto: header block exceeds 8KiB")
	ErrMalformedRequest = errors.New("httpproto: malformed request line")
	ErrUnsupportedProto = errors.New("httpproto: unsupported HTTP version")
	ErrDuplicateHost    = errors.New("httpproto: duplicate Host header")
	ErrMissingHost      = errors.New("httpproto: missing Host header")
	ErrBadTransferEnc   = errors.New("httpproto: unsupported Transfer-Encoding")
)

// RequestHead is the parsed request line plus headers, before body
// framing has been determined.
type RequestHead struct {
	Method  string
	Target  string
	Proto   string // "HTTP/1.1" or "HTTP/1.0"
	Header  Header
	Host    string
	RawSize int // bytes consumed from the connection's read buffer
}

// FindHeaderEnd scans buf for the first "\r\n\r\n", bounded to
// MaxHeaderBlockBytes. It returns the offset just past the terminator
// (where the body, if any, begins) and whether it was found.
func FindHeaderEnd(buf []byte) (end int, found bool, overflow bool) {
	limit := len(buf)
	if limit > MaxHeaderBlockBytes {
		limit = MaxHeaderBlockBytes
	}
	for i := 0; i+3 < limit; i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' && buf[i+2] == '\r' && buf[i+3] == '\n' {
			return i + 4, true, false
		}
	}
	if len(buf) >= MaxHeaderBlockBytes {
		return 0, false, true
	}
	return 0, false, false
}

// ParseHead parses the request line and headers out of block, which
// must be exactly the bytes up to and including the terminating
// blank line (as located by FindHeaderEnd).
func ParseHead(block []byte) (*RequestHead, error) {
	text := string(block)
	lineEnd := strings.Index(text, "\r\n")
	if lineEnd < 0 {
		return nil, ErrMalformedRequest
	}
	requestLine := text[:lineEnd]
	rest := text[lineEnd+2:]

	parts := strings.Split(requestLine, " ")
	if len(parts) != 3 {
		return nil, ErrMalformedRequest
	}
	method, target, proto := parts[0], parts[1], parts[2]
	if method == "" || target == "" {
		return nil, ErrMalformedRequest
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return nil, ErrUnsupportedProto
	}

	head := &RequestHead{
		Method: method,
		Target: target,
		Proto:  proto,
		Header: make(Header),
	}

	// rest ends with the trailing blank line's own CRLF; strip it.
	rest = strings.TrimSuffix(rest, "\r\n")
	if rest != "" {
		for _, line := range strings.Split(rest, "\r\n") {
			if line == "" {
				continue
			}
			colon := strings.IndexByte(line, ':')
			if colon < 0 {
				return nil, ErrMalformedRequest
			}
			name := strings.TrimSpace(line[:colon])
			value := strings.TrimSpace(line[colon+1:])
			if name == "" {
				return nil, ErrMalformedRequest
			}
			head.Header.Add(name, value)
		}
	}

	if head.Header.Count("Host") > 1 {
		return nil, ErrDuplicateHost
	}
	host := head.Header.Get("Host")
	if host == "" && proto == "HTTP/1.1" {
		return nil, ErrMissingHost
	}
	head.Host = host
	return head, nil
}

// BodyFraming describes how the request body (if any) is delimited.
type BodyFraming struct {
	Chunked       bool
	ContentLength int64 // -1 if unknown/absent
	HasBody       bool
}

// DetermineFraming implements spec.md §4.3's body-framing decision.
func DetermineFraming(h Header) (BodyFraming, error) {
	if te := h.Get("Transfer-Encoding"); te != "" {
		if !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			return BodyFraming{}, ErrBadTransferEnc
		}
		return BodyFraming{Chunked: true, ContentLength: -1, HasBody: true}, nil
	}
	if cl := h.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return BodyFraming{}, ErrMalformedRequest
		}
		return BodyFraming{ContentLength: n, HasBody: n > 0}, nil
	}
	return BodyFraming{ContentLength: 0, HasBody: false}, nil
}

// KeepAliveDefault implements spec.md §4.8's per-version default,
// before considering explicit Connection headers.
func KeepAliveDefault(proto string) bool {
	return proto == "HTTP/1.1"
}

// WantsClose inspects an explicit Connection header, if present.
func WantsClose(h Header) (explicit bool, close bool) {
	v := strings.ToLower(h.Get("Connection"))
	switch v {
	case "close":
		return true, true
	case "keep-alive":
		return true, false
	default:
		return false, false
	}
}
