package sse

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringBody struct {
	io.Reader
}

func (stringBody) Close() error { return nil }

func newDecoder(s string) *Decoder {
	return NewDecoder(stringBody{strings.NewReader(s)})
}

func TestDecoder_YieldsDataPayloadsInOrder(t *testing.T) {
	d := newDecoder("data: {\"a\":1}\n\ndata: {\"a\":2}\n\ndata: [DONE]\n")

	first, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, first)

	second, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, second)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_SkipsEventAndCommentLines(t *testing.T) {
	d := newDecoder("event: message_start\n: heartbeat\ndata: payload\n")

	payload, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "payload", payload)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_EmptyBodyReturnsEOFImmediately(t *testing.T) {
	d := newDecoder("")
	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_DoneMarkerTerminatesEvenMidStream(t *testing.T) {
	d := newDecoder("data: [DONE]\ndata: should-not-appear\n")

	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

type errReader struct{ err error }

func (r errReader) Read(p []byte) (int, error) { return 0, r.err }
func (errReader) Close() error                 { return nil }

func TestDecoder_PropagatesScanError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDecoder(errReader{err: boom})

	_, err := d.Next()
	assert.ErrorIs(t, err, boom)
}

func TestDecoder_Close_ClosesUnderlyingBody(t *testing.T) {
	d := newDecoder("data: x\n")
	assert.NoError(t, d.Close())
}
