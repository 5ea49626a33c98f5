package wisun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/semgw/skstack"
)

// HandshakePort is the UDP port of the secured session handshake. Datagrams
// arriving on it are diverted to Handshake instead of the notification queue.
const HandshakePort uint16 = 716

// Step is one expectation of a WaitSpec: any of its tags satisfies it.
// Tags match by prefix, so "EVENT" accepts every event notice.
type Step []string

// Expect builds a Step accepting any of the given tags.
func Expect(tags ...string) Step {
	return Step(tags)
}

func (s Step) matches(tag string) bool {
	for _, want := range s {
		if strings.HasPrefix(tag, want) {
			return true
		}
	}
	return false
}

// WaitSpec is an ordered list of expectations consumed front to back.
type WaitSpec []Step

// Module is a Wi-SUN radio module speaking SKSTACK over a serial line.
//
// All transport I/O happens in Loop. Commands are handed to the loop, which
// writes them and installs their wait in one step, so a reply can never
// arrive before the wait that should claim it.
type Module struct {
	transport Transport
	reader    *LineReader
	config    Config
	logger    *slog.Logger

	closed      atomic.Bool
	loopRunning atomic.Bool
	done        chan struct{}

	// One reader per Module, started by the first Loop, so a restarted
	// Loop never races an old reader for the transport.
	lines      chan string
	readErr    error
	readerOnce sync.Once

	// failed is closed once the transport has failed; failErr is set first.
	failed   chan struct{}
	failErr  error
	failOnce sync.Once

	// commands hands requests to the loop; unbuffered so that a second
	// caller blocks until the loop is idle again.
	commands  chan *commandRequest
	queue     *Queue
	handshake chan skstack.InboundDatagram
}

type commandRequest struct {
	wire            []byte
	spec            WaitSpec
	ignoreUnmatched bool
	timeout         time.Duration
	ctx             context.Context
	respChan        chan commandResponse
}

type commandResponse struct {
	events []skstack.Event
	err    error
}

// New dials the module and prepares it for Loop.
func New(ctx context.Context, config Config) (*Module, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial module: %w", err)
	}

	return &Module{
		transport: transport,
		reader:    NewLineReader(transport),
		config:    config,
		logger:    config.logger,
		done:      make(chan struct{}),
		lines:     make(chan string, 16),
		failed:    make(chan struct{}),
		commands:  make(chan *commandRequest),
		queue:     NewQueue(),
		handshake: make(chan skstack.InboundDatagram, 16),
	}, nil
}

// Loop reads and dispatches module output until ctx is cancelled, the
// module is closed or the transport fails. It must be running for any
// command to complete. Loop may be restarted after ctx is cancelled; once
// the transport has failed it returns that error right away, as do all
// pending and later commands and Next.
//
//	m, err := wisun.New(ctx, config)
//	if err != nil { return err }
//	go m.Loop(ctx)
//	err = m.SetChannel(ctx, 33)
func (m *Module) Loop(ctx context.Context) error {
	if m.transport == nil {
		return ErrNotInitialized
	}
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	select {
	case <-m.failed:
		return m.failErr
	default:
	}
	m.readerOnce.Do(func() { go m.read() })

	var w waiter
	defer w.stop()
	warnAt := m.config.queueWarnLen

	for {
		// Only accept a new command while idle.
		commands := m.commands
		if w.req != nil {
			commands = nil
		}

		select {
		case <-ctx.Done():
			w.finish(nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
			return ctx.Err()

		case <-m.done:
			w.finish(nil, ErrAlreadyClosed)
			return nil

		case req := <-commands:
			if err := req.ctx.Err(); err != nil {
				req.respChan <- commandResponse{err: contextError(err)}
				continue
			}
			if req.wire != nil {
				m.logger.Debug("write", "command", commandName(req.wire), "bytes", len(req.wire))
				if _, err := m.transport.Write(req.wire); err != nil {
					req.respChan <- commandResponse{err: fmt.Errorf("write %s: %w", commandName(req.wire), err)}
					continue
				}
			}
			if len(req.spec) == 0 {
				req.respChan <- commandResponse{}
				continue
			}
			w.install(req)

		case line, ok := <-m.lines:
			if !ok {
				err := m.readErr
				if err == nil {
					err = io.EOF
				}
				err = fmt.Errorf("read line: %w", err)
				m.fail(err)
				w.finish(nil, err)
				return err
			}
			ev := skstack.Parse(line)
			m.logger.Debug("read", "line", line, "tag", ev.Tag())
			m.dispatch(&w, ev)

			if n := m.queue.Len(); warnAt > 0 && n >= warnAt {
				m.logger.Warn("notification queue is growing", "length", n)
				warnAt *= 2
			}

		case <-w.deadline:
			w.finish(nil, fmt.Errorf("%w after %s", ErrTimeout, w.req.timeout))

		case <-w.cancelled:
			w.finish(nil, contextError(w.req.ctx.Err()))
		}
	}
}

// read feeds m.lines until the transport fails or the module is closed.
// readErr is set before lines is closed.
func (m *Module) read() {
	defer close(m.lines)
	for {
		line, err := m.reader.ReadLine()
		if errors.Is(err, ErrIdleTimeout) {
			if m.closed.Load() {
				return
			}
			continue
		}
		if errors.Is(err, ErrLineTooLong) {
			m.logger.Warn("discarding overlong line", "limit", MaxLineLength)
			continue
		}
		if err != nil {
			m.readErr = err
			return
		}
		if line == "" {
			continue
		}
		select {
		case m.lines <- line:
		case <-m.done:
			return
		}
	}
}

// fail records the transport fault and wakes everyone waiting on the module.
func (m *Module) fail(err error) {
	m.failOnce.Do(func() {
		m.failErr = err
		close(m.failed)
		m.queue.Fail(err)
	})
}

// dispatch routes one event to the active wait or to the notification queue.
func (m *Module) dispatch(w *waiter, ev skstack.Event) {
	if w.req == nil {
		m.enqueue(ev)
		return
	}

	if fail, ok := ev.(skstack.Fail); ok {
		w.finish(nil, fmt.Errorf("%w: %s", ErrCommandFailed, fail.Code))
		return
	}

	step := w.req.spec[len(w.outcome)]
	if step.matches(ev.Tag()) {
		w.outcome = append(w.outcome, ev)
		if len(w.outcome) == len(w.req.spec) {
			w.finish(w.outcome, nil)
		}
		return
	}

	if w.req.ignoreUnmatched {
		m.logger.Debug("dropping unmatched event", "tag", ev.Tag(), "want", []string(step))
		return
	}
	m.enqueue(ev)
}

func (m *Module) enqueue(ev skstack.Event) {
	if dg, ok := ev.(skstack.InboundDatagram); ok && dg.LocalPort == HandshakePort {
		select {
		case m.handshake <- dg:
		default:
			m.logger.Debug("handshake channel full, dropping datagram", "sender", dg.Sender)
		}
		return
	}
	m.queue.Push(ev)
}

// waiter is the loop's single active-wait slot.
type waiter struct {
	req       *commandRequest
	outcome   []skstack.Event
	timer     *time.Timer
	deadline  <-chan time.Time
	cancelled <-chan struct{}
}

func (w *waiter) install(req *commandRequest) {
	w.req = req
	w.outcome = make([]skstack.Event, 0, len(req.spec))
	if req.timeout > 0 {
		w.timer = time.NewTimer(req.timeout)
		w.deadline = w.timer.C
	}
	w.cancelled = req.ctx.Done()
}

// finish delivers the result to the waiting caller, if any, and returns
// the slot to idle.
func (w *waiter) finish(events []skstack.Event, err error) {
	if w.req == nil {
		return
	}
	w.req.respChan <- commandResponse{events: events, err: err}
	w.stop()
	*w = waiter{}
}

func (w *waiter) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

// IssueCommand writes wire to the module and blocks until spec is fully
// matched, returning one event per step. A nil wire installs the wait
// without writing; an empty spec returns as soon as the write is done.
//
// Events that don't match the current step go to the notification queue,
// or are dropped when ignoreUnmatched is set. A FAIL reply ends the wait
// with ErrCommandFailed. A timeout of zero or less means no deadline other
// than the context's.
func (m *Module) IssueCommand(ctx context.Context, wire []byte, spec WaitSpec, ignoreUnmatched bool, timeout time.Duration) ([]skstack.Event, error) {
	if m.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	if m.transport == nil {
		return nil, ErrNotInitialized
	}

	req := &commandRequest{
		wire:            wire,
		spec:            spec,
		ignoreUnmatched: ignoreUnmatched,
		timeout:         timeout,
		ctx:             ctx,
		respChan:        make(chan commandResponse, 1),
	}

	select {
	case m.commands <- req:
	case <-m.done:
		return nil, ErrAlreadyClosed
	case <-m.failed:
		return nil, m.failErr
	case <-ctx.Done():
		return nil, fmt.Errorf("command not sent: %w", contextError(ctx.Err()))
	}

	// The loop always answers an accepted request, including on
	// cancellation, so there is no need to watch ctx here.
	resp := <-req.respChan
	return resp.events, resp.err
}

// command sends a text command line and waits for spec with the default
// command timeout.
func (m *Module) command(ctx context.Context, line string, spec WaitSpec) ([]skstack.Event, error) {
	return m.IssueCommand(ctx, []byte(line+skstack.CRLF), spec, false, m.config.commandTimeout)
}

// Next pops the oldest queued notification, blocking until one arrives or
// ctx is done. Once the queue is empty after a transport fault or Close,
// Next returns that error.
func (m *Module) Next(ctx context.Context) (skstack.Event, error) {
	return m.queue.Next(ctx)
}

// Pending reports the number of queued notifications.
func (m *Module) Pending() int {
	return m.queue.Len()
}

// Handshake returns the channel receiving datagrams addressed to
// HandshakePort. It is buffered; datagrams are dropped when it is full.
func (m *Module) Handshake() <-chan skstack.InboundDatagram {
	return m.handshake
}

func (m *Module) drainHandshake() {
	for {
		select {
		case <-m.handshake:
		default:
			return
		}
	}
}

// Close stops the loop and closes the transport. A Module cannot be
// reused after Close.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	close(m.done)
	m.queue.Fail(ErrAlreadyClosed)

	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}

// contextError maps context errors onto ErrTimeout and ErrCancelled and
// passes anything else through.
func contextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return err
}

// commandName returns the first word of a command for logging; payloads
// of send commands are binary.
func commandName(wire []byte) string {
	s := string(wire)
	if i := strings.IndexAny(s, " \r"); i >= 0 {
		s = s[:i]
	}
	return s
}
