package wisun

import "errors"

var (
	// ErrNoDialer is returned when a Module is constructed without a Dialer.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a
	// Module that has no transport.
	ErrNotInitialized = errors.New("module not initialized")

	// ErrAlreadyClosed is returned by operations on a Module after Close.
	ErrAlreadyClosed = errors.New("module already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// still running on the same Module.
	ErrLoopRunning = errors.New("loop already running")

	// ErrLineTooLong is returned when the module sends more than
	// MaxLineLength bytes without a line terminator.
	//
	// This typically indicates binary output (hex output disabled) or a
	// baud rate mismatch.
	ErrLineTooLong = errors.New("response line too long")

	// ErrIdleTimeout is returned by LineReader.ReadLine when the transport
	// delivered nothing within its read timeout. It is not a fault.
	ErrIdleTimeout = errors.New("idle timeout")

	// ErrTimeout is returned when a command's wait is not satisfied before
	// its deadline. Partial matches are discarded.
	ErrTimeout = errors.New("timed out waiting for module")

	// ErrCancelled is returned when the caller's context is cancelled while
	// a command or scan is in progress. It is distinct from an empty result.
	ErrCancelled = errors.New("cancelled")

	// ErrCommandFailed is returned when the module rejects a command with
	// a FAIL reply.
	ErrCommandFailed = errors.New("command failed")

	// ErrJoinFailed is returned when the secured session handshake reports
	// failure.
	ErrJoinFailed = errors.New("secured session handshake failed")

	// ErrTransmitFailed is returned when a datagram could not be sent.
	ErrTransmitFailed = errors.New("transmit failed")

	// ErrTransmitLimited is returned when a datagram could not be sent
	// because the module hit its transmit duty-cycle limit.
	//
	// Callers should back off rather than retry immediately.
	ErrTransmitLimited = errors.New("transmit limit reached")

	// ErrBadArgument is returned when a command argument is out of range.
	ErrBadArgument = errors.New("bad argument")
)
