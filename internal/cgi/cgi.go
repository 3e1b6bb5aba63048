// Package cgi implements spec.md §4.6: spawning an interpreter against
// a script, wiring its three pipes into the reactor, streaming the
// (de-chunked) request body to its stdin, reading its stdout until
// EOF, parsing the CGI response head, and re-framing the remainder as
// a chunked HTTP body.
package cgi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nullware/webserv/internal/httpproto"
)

// Process is a spawned CGI child, owned by exactly one connection
// (spec.md §3, §9 "Connection ownership of CGI"). The reactor looks
// up the owning connection by pipe fd; closing the connection closes
// the child's pipes, which in turn lets the child see EOF/SIGPIPE.
type Process struct {
	Cmd     *exec.Cmd
	Pid     int
	StdinW  *os.File // parent's write end of the child's stdin
	StdoutR *os.File // parent's read end of the child's stdout
	StderrR *os.File

	Deadline time.Time

	StdinBuf    []byte
	StdinCursor int
	StdinClosed bool

	StdoutBuf    []byte
	HeadParsed   bool
	HeadStatus   int
	HeadHeaders  httpproto.Header
	StdoutClosed bool

	Exited   bool
	ExitCode int
}

// EnvParams carries everything BuildEnv needs to construct the CGI/1.1
// environment described in spec.md §4.6 and SPEC_FULL.md §7.4.
type EnvParams struct {
	Method         string
	ScriptName     string // portion of the path up to and including the script
	PathInfo       string // remainder of the path after the script
	QueryString    string
	ContentLength  int64 // -1 if unknown
	ContentType    string
	Headers        httpproto.Header
	ServerSoftware string
	ServerName     string
	ServerPort     string
	RemoteAddr     string
	RequestID      string
}

// BuildEnv implements spec.md §4.6's CGI/1.1 subset plus the
// supplemental variables from SPEC_FULL.md §7.4.
func BuildEnv(p EnvParams) []string {
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=HTTP/1.1",
		"SERVER_SOFTWARE=" + p.ServerSoftware,
		"REQUEST_METHOD=" + p.Method,
		"SCRIPT_NAME=" + p.ScriptName,
		"PATH_INFO=" + p.PathInfo,
		"QUERY_STRING=" + p.QueryString,
		"SERVER_NAME=" + p.ServerName,
		"SERVER_PORT=" + p.ServerPort,
		"REMOTE_ADDR=" + p.RemoteAddr,
		"REDIRECT_STATUS=200",
		"REQUEST_ID=" + p.RequestID,
	}
	if p.ContentLength >= 0 {
		env = append(env, "CONTENT_LENGTH="+strconv.FormatInt(p.ContentLength, 10))
	}
	if p.ContentType != "" {
		env = append(env, "CONTENT_TYPE="+p.ContentType)
	}
	for name, vals := range p.Headers {
		if len(vals) == 0 {
			continue
		}
		if name == "Content-Length" || name == "Content-Type" {
			continue
		}
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env = append(env, key+"="+vals[0])
	}
	return env
}

// Spawn starts interpreter against scriptPath, working directory set
// to the script's directory, with three pipes wired for the reactor
// (spec.md §4.6 "Spawned"). The parent ends are returned non-blocking
// so the reactor can register them directly.
func Spawn(interpreter, scriptPath string, workDir string, env []string) (*Process, error) {
	cmd := exec.Command(interpreter, scriptPath)
	cmd.Dir = workDir
	cmd.Env = env

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("cgi: stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("cgi: stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("cgi: stderr pipe: %w", err)
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("cgi: spawn: %w", err)
	}

	// Parent closes the ends handed to the child (spec.md §4.6 step 1).
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	for _, f := range []*os.File{stdinW, stdoutR, stderrR} {
		if err := syscall.SetNonblock(int(f.Fd()), true); err != nil {
			_ = cmd.Process.Kill()
			return nil, fmt.Errorf("cgi: set nonblocking: %w", err)
		}
	}

	return &Process{
		Cmd:         cmd,
		Pid:         cmd.Process.Pid,
		StdinW:      stdinW,
		StdoutR:     stdoutR,
		StderrR:     stderrR,
		HeadHeaders: make(httpproto.Header),
	}, nil
}

// NeedsStdin reports whether there is still request body to push.
func (p *Process) NeedsStdin() bool {
	return !p.StdinClosed
}

// DrainStdin writes as much of the buffered body as the pipe accepts
// without blocking, closing stdin once everything (if any) has been
// written. Called when the stdin fd is writable.
func (p *Process) DrainStdin() error {
	for p.StdinCursor < len(p.StdinBuf) {
		n, err := p.StdinW.Write(p.StdinBuf[p.StdinCursor:])
		if n > 0 {
			p.StdinCursor += n
		}
		if err != nil {
			if isWouldBlock(err) {
				return nil
			}
			p.closeStdin()
			return err
		}
		if n == 0 {
			return nil
		}
	}
	p.closeStdin()
	return nil
}

func (p *Process) closeStdin() {
	if !p.StdinClosed {
		p.StdinClosed = true
		p.StdinW.Close()
	}
}

// ReadStdout pulls one bounded read from the child's stdout into the
// internal buffer (spec.md §5: bounded work per reactor turn). It
// returns the number of bytes read and whether EOF was observed.
func (p *Process) ReadStdout(chunk int) (n int, eof bool, err error) {
	buf := make([]byte, chunk)
	n, err = p.StdoutR.Read(buf)
	if n > 0 {
		p.StdoutBuf = append(p.StdoutBuf, buf[:n]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, true, nil
		}
		if isWouldBlock(err) {
			return n, false, nil
		}
		return n, false, err
	}
	return n, false, nil
}

// TryParseHead attempts to locate and parse the CGI response head
// terminator ("\n\n" or "\r\n\r\n") in StdoutBuf (spec.md §4.6
// "StreamingOut"). Returns whether the head is now parsed.
func (p *Process) TryParseHead() (bool, error) {
	if p.HeadParsed {
		return true, nil
	}
	idx, termLen := findCGIHeadEnd(p.StdoutBuf)
	if idx < 0 {
		return false, nil
	}
	headBlock := p.StdoutBuf[:idx]
	p.StdoutBuf = p.StdoutBuf[idx+termLen:]

	status := 200
	headers := make(httpproto.Header)
	for _, line := range strings.Split(string(headBlock), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return false, fmt.Errorf("cgi: malformed response head line %q", line)
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		headers.Add(name, value)
	}

	if s := headers.Get("Status"); s != "" {
		fields := strings.Fields(s)
		if len(fields) > 0 {
			if code, err := strconv.Atoi(fields[0]); err == nil {
				status = code
			}
		}
	} else if loc := headers.Get("Location"); loc != "" && strings.HasPrefix(loc, "/") {
		status = 302
	}
	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "text/plain")
	}

	p.HeadStatus = status
	p.HeadHeaders = headers
	p.HeadParsed = true
	return true, nil
}

// findCGIHeadEnd locates the first blank-line terminator, accepting
// either bare LF or CRLF style line endings (spec.md §4.6).
func findCGIHeadEnd(buf []byte) (idx int, termLen int) {
	crlf := bytes.Index(buf, []byte("\r\n\r\n"))
	lf := bytes.Index(buf, []byte("\n\n"))
	switch {
	case crlf < 0:
		if lf < 0 {
			return -1, 0
		}
		return lf, 2
	case lf < 0 || crlf <= lf:
		return crlf, 4
	default:
		return lf, 2
	}
}

// TakeStdoutBody drains and returns whatever body bytes have
// accumulated since the head was parsed (spec.md §4.6 "PipingBody").
func (p *Process) TakeStdoutBody() []byte {
	if len(p.StdoutBuf) == 0 {
		return nil
	}
	out := p.StdoutBuf
	p.StdoutBuf = nil
	return out
}

// Reap performs a non-blocking wait4 for the child, per spec.md §4.6
// "Reaping". It is the direct, lower-level analogue of os/exec's
// blocking Cmd.Wait, necessary here because the reactor must never
// block on a child it does not yet know has exited.
func (p *Process) Reap() (exited bool, err error) {
	if p.Exited {
		return true, nil
	}
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(p.Pid, &ws, syscall.WNOHANG, nil)
	if err != nil {
		if err == syscall.ECHILD {
			p.Exited = true
			return true, nil
		}
		return false, err
	}
	if pid == p.Pid {
		p.Exited = true
		p.ExitCode = ws.ExitStatus()
		return true, nil
	}
	return false, nil
}

// Kill sends SIGKILL to the child, per spec.md §4.6 "Timeout".
func (p *Process) Kill() {
	if p.Cmd != nil && p.Cmd.Process != nil {
		_ = p.Cmd.Process.Kill()
	}
}

// Close releases every pipe fd this process owns. Safe to call more
// than once.
func (p *Process) Close() {
	p.closeStdin()
	p.StdoutR.Close()
	p.StderrR.Close()
}

func isWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}
