// Package sse implements the generic Server-Sent-Events line-scanning rules
// shared by every streaming adapter: split on LF, strip the "data:" prefix,
// treat a literal "[DONE]" payload as stream termination. Provider-specific
// event typing (Anthropic's message_start/content_block_delta, Google's
// candidate/finishReason, Cohere's content-delta/message-end) is layered on
// top by each adapter; this package only owns the line mechanics, grounded
// in the teacher's internal/streaming/forwarder.go buffer-pooling scanner.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

const (
	dataPrefix     = "data:"
	doneMarker     = "[DONE]"
	defaultBufSize = 4096
	maxBufSize     = defaultBufSize * 64
)

var lineBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, defaultBufSize)
		return &buf
	},
}

// Decoder scans an SSE body line by line and yields raw payloads (the part
// of a "data:" line after the prefix, whitespace-trimmed). Lines that carry
// no payload (blank lines, "event:" lines, comments) are skipped internally
// and never surface to the caller.
type Decoder struct {
	scanner *bufio.Scanner
	body    io.ReadCloser
	done    bool
}

// NewDecoder wraps body in a line-oriented SSE decoder. The caller remains
// responsible for closing body (via Decoder.Close).
func NewDecoder(body io.ReadCloser) *Decoder {
	bufPtr := lineBufPool.Get().(*[]byte)
	scanner := bufio.NewScanner(body)
	scanner.Buffer(*bufPtr, maxBufSize)
	return &Decoder{scanner: scanner, body: body}
}

// Next returns the next non-empty data payload, io.EOF when the stream ends
// naturally (including via an explicit "[DONE]" payload), or a scan error.
func (d *Decoder) Next() (string, error) {
	if d.done {
		return "", io.EOF
	}
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if bytes.HasPrefix(line, []byte("event:")) || bytes.HasPrefix(line, []byte(":")) {
			continue
		}
		payload := line
		if bytes.HasPrefix(payload, []byte(dataPrefix)) {
			payload = bytes.TrimSpace(payload[len(dataPrefix):])
		}
		if len(payload) == 0 {
			continue
		}
		if string(payload) == doneMarker {
			d.done = true
			return "", io.EOF
		}
		return string(payload), nil
	}
	if err := d.scanner.Err(); err != nil {
		return "", err
	}
	d.done = true
	return "", io.EOF
}

// Close releases the underlying response body.
func (d *Decoder) Close() error {
	return d.body.Close()
}
