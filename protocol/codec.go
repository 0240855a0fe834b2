package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxLineLength bounds how many bytes may accumulate without a CRLF before
// the control connection is considered hostile.
const MaxLineLength = 4096

// ErrLineTooLong is returned by LineCodec.Decode when the buffered input
// exceeds MaxLineLength with no line terminator in sight. The offending
// bytes are discarded.
var ErrLineTooLong = errors.New("protocol: command line too long")

// LineCodec is the incremental control-channel codec. Bytes read from the
// socket are appended with Feed; Decode extracts one CRLF-terminated line
// at a time and hands it to the command parser. Encode renders replies.
//
// The zero value is ready to use.
type LineCodec struct {
	buf []byte
}

// Feed appends raw bytes from the control socket to the decode buffer.
func (c *LineCodec) Feed(p []byte) {
	c.buf = append(c.buf, p...)
}

var crlf = []byte("\r\n")

// Decode scans for the first CRLF. If none is buffered yet it reports
// ok=false ("need more data") and no partial command is ever exposed.
// A lone CR or LF before the first CRLF is literal line content: the scan
// matches the two-byte sequence, not the bytes independently. The consumed
// line, minus its terminator, goes through ParseCommand.
func (c *LineCodec) Decode() (cmd Command, ok bool, err error) {
	idx := bytes.Index(c.buf, crlf)
	if idx < 0 {
		if len(c.buf) > MaxLineLength {
			c.buf = nil
			return Command{}, false, ErrLineTooLong
		}
		return Command{}, false, nil
	}
	line := c.buf[:idx]
	cmd, err = ParseCommand(line)
	c.buf = c.buf[idx+len(crlf):]
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}

// Encode renders a reply as "<code> <message>\r\n", or "<code>\r\n" when
// the message is empty.
func (c *LineCodec) Encode(a Answer) []byte {
	if a.Message == "" {
		return []byte(fmt.Sprintf("%d\r\n", a.Code))
	}
	return []byte(fmt.Sprintf("%d %s\r\n", a.Code, a.Message))
}

// RawCodec models the data channel: no delimiters, no framing. Encode
// appends bytes as-is and Drain hands back everything buffered so far as a
// single unit.
//
// The zero value is ready to use.
type RawCodec struct {
	buf []byte
}

// Encode appends p to the buffer.
func (c *RawCodec) Encode(p []byte) {
	c.buf = append(c.buf, p...)
}

// Len reports the number of buffered bytes.
func (c *RawCodec) Len() int {
	return len(c.buf)
}

// Drain returns all buffered bytes as one unit and resets the codec.
func (c *RawCodec) Drain() []byte {
	out := c.buf
	c.buf = nil
	return out
}
