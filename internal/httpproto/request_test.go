package httpproto

import "testing"

func TestFindHeaderEnd(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\nbody-follows")
	end, found, overflow := FindHeaderEnd(buf)
	if !found || overflow {
		t.Fatalf("expected found, got found=%v overflow=%v", found, overflow)
	}
	if string(buf[end:]) != "body-follows" {
		t.Fatalf("wrong split point: %q", buf[end:])
	}
}

func TestFindHeaderEndOverflow(t *testing.T) {
	buf := make([]byte, MaxHeaderBlockBytes+10)
	for i := range buf {
		buf[i] = 'a'
	}
	_, found, overflow := FindHeaderEnd(buf)
	if found || !overflow {
		t.Fatalf("expected overflow, got found=%v overflow=%v", found, overflow)
	}
}

func TestParseHeadBasic(t *testing.T) {
	block := []byte("GET /a/b?x=1 HTTP/1.1\r\nHost: ex.com\r\nX-Foo: bar\r\n\r\n")
	h, err := ParseHead(block)
	if err != nil {
		t.Fatal(err)
	}
	if h.Method != "GET" || h.Target != "/a/b?x=1" || h.Proto != "HTTP/1.1" {
		t.Fatalf("parsed wrong: %+v", h)
	}
	if h.Host != "ex.com" {
		t.Fatalf("host mismatch: %q", h.Host)
	}
	if h.Header.Get("X-Foo") != "bar" {
		t.Fatalf("header mismatch: %v", h.Header)
	}
}

func TestParseHeadMissingHostHTTP11(t *testing.T) {
	block := []byte("GET / HTTP/1.1\r\n\r\n")
	if _, err := ParseHead(block); err != ErrMissingHost {
		t.Fatalf("expected ErrMissingHost, got %v", err)
	}
}

func TestParseHeadMissingHostHTTP10OK(t *testing.T) {
	block := []byte("GET / HTTP/1.0\r\n\r\n")
	h, err := ParseHead(block)
	if err != nil {
		t.Fatalf("HTTP/1.0 without Host should be accepted: %v", err)
	}
	if h.Host != "" {
		t.Fatalf("expected empty host, got %q", h.Host)
	}
}

func TestParseHeadDuplicateHost(t *testing.T) {
	block := []byte("GET / HTTP/1.1\r\nHost: a\r\nHost: b\r\n\r\n")
	if _, err := ParseHead(block); err != ErrDuplicateHost {
		t.Fatalf("expected ErrDuplicateHost, got %v", err)
	}
}

func TestParseHeadBadVersion(t *testing.T) {
	block := []byte("GET / HTTP/2.0\r\nHost: a\r\n\r\n")
	if _, err := ParseHead(block); err != ErrUnsupportedProto {
		t.Fatalf("expected ErrUnsupportedProto, got %v", err)
	}
}

func TestDetermineFramingChunked(t *testing.T) {
	h := make(Header)
	h.Set("Transfer-Encoding", "chunked")
	f, err := DetermineFraming(h)
	if err != nil || !f.Chunked || !f.HasBody {
		t.Fatalf("unexpected framing: %+v err=%v", f, err)
	}
}

func TestDetermineFramingBadTransferEncoding(t *testing.T) {
	h := make(Header)
	h.Set("Transfer-Encoding", "gzip")
	if _, err := DetermineFraming(h); err != ErrBadTransferEnc {
		t.Fatalf("expected ErrBadTransferEnc, got %v", err)
	}
}

func TestDetermineFramingContentLength(t *testing.T) {
	h := make(Header)
	h.Set("Content-Length", "42")
	f, err := DetermineFraming(h)
	if err != nil || f.Chunked || f.ContentLength != 42 || !f.HasBody {
		t.Fatalf("unexpected framing: %+v err=%v", f, err)
	}
}

func TestDetermineFramingNoBody(t *testing.T) {
	h := make(Header)
	f, err := DetermineFraming(h)
	if err != nil || f.HasBody {
		t.Fatalf("unexpected framing: %+v err=%v", f, err)
	}
}
