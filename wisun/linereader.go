package wisun

import (
	"io"

	"i4.energy/across/semgw/skstack"
)

// MaxLineLength is the longest line LineReader accepts. An ERXUDP line
// carrying a full 1232-byte datagram as hex stays well below it.
const MaxLineLength = 4096

// LineReader reads terminated lines from a Transport.
//
// Unlike bufio.Scanner it treats an empty read as an idle timeout instead
// of a stalled reader, so it can sit on a serial port with a read timeout
// indefinitely.
type LineReader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
	err   error
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:     r,
		chunk: make([]byte, 512),
	}
}

// ReadLine returns the next line without its terminator. It returns
// ErrIdleTimeout when the transport delivered nothing within its read
// timeout, and the transport's error once buffered lines are exhausted.
func (lr *LineReader) ReadLine() (string, error) {
	for {
		if advance, token, _ := skstack.Splitter(lr.buf, lr.err != nil); advance > 0 {
			line := string(token)
			lr.buf = append(lr.buf[:0], lr.buf[advance:]...)
			return line, nil
		}
		if lr.err != nil {
			return "", lr.err
		}
		if len(lr.buf) >= MaxLineLength {
			lr.buf = lr.buf[:0]
			return "", ErrLineTooLong
		}

		n, err := lr.r.Read(lr.chunk)
		lr.buf = append(lr.buf, lr.chunk[:n]...)
		if err != nil {
			lr.err = err
			continue
		}
		if n == 0 {
			return "", ErrIdleTimeout
		}
	}
}
