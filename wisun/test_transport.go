package wisun

import (
	"context"
	"io"
	"strings"
	"sync"

	"i4.energy/across/semgw/skstack"
)

// TestTransport is a channel-backed fake module. Reads block until data is
// queued, like a serial port, and writes can trigger scripted replies.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	writes   []string
	replies  []scriptedReply

	// pending is the unread rest of the last chunk; only Read touches it.
	pending []byte
}

type scriptedReply struct {
	prefix string
	data   string
}

func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 64),
	}
}

// Reply makes the next write starting with prefix answer with lines, each
// terminated by CRLF. Replies are consumed once, in registration order.
func (t *TestTransport) Reply(prefix string, lines ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString(skstack.CRLF)
	}
	t.replies = append(t.replies, scriptedReply{prefix: prefix, data: b.String()})
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	w := string(p)
	t.writes = append(t.writes, w)
	for i, r := range t.replies {
		if strings.HasPrefix(w, r.prefix) {
			t.replies = append(t.replies[:i], t.replies[i+1:]...)
			if r.data != "" {
				t.readChan <- []byte(r.data)
			}
			break
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	if len(t.pending) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.pending = data
	}
	n = copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read, simulating unsolicited module output.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes returns everything written so far, one entry per Write.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Dial lets a TestTransport act as its own Dialer.
func (t *TestTransport) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
