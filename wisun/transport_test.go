package wisun

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	transport, err := dialer.Dial(context.Background())

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "wisun: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyS0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "wisun: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_NonexistentPort(t *testing.T) {
	tests := []struct {
		name   string
		dialer SerialDialer
	}{
		{"default mode", SerialDialer{PortName: "/dev/nonexistent"}},
		{"baud rate", SerialDialer{PortName: "/dev/nonexistent", BaudRate: 9600}},
		{"explicit mode", SerialDialer{
			PortName: "/dev/nonexistent",
			Mode: &serial.Mode{
				BaudRate: 115200,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := tt.dialer.Dial(context.Background())
			if err == nil {
				t.Fatal("expected error for non-existent port")
			}
			if transport != nil {
				t.Error("expected nil transport for non-existent port")
			}
			if !strings.Contains(err.Error(), "/dev/nonexistent") {
				t.Errorf("expected error to name the port, got: %v", err)
			}
		})
	}
}

func TestTransportInterface(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := NewMockTransport(ctrl)
	var _ Transport = mockTransport
	var _ Transport = NewTestTransport()
	var _ Dialer = SerialDialer{}
	var _ Dialer = NewTestTransport()

	data := []byte("SKINFO\r\n")
	mockTransport.EXPECT().Write(data).Return(len(data), nil)
	mockTransport.EXPECT().Close().Return(nil)

	n, err := mockTransport.Write(data)
	if err != nil {
		t.Errorf("unexpected write error: %v", err)
	}
	if n != len(data) {
		t.Errorf("expected %d bytes written, got %d", len(data), n)
	}
	if err := mockTransport.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

// scriptedReader returns one step per Read call.
type scriptedReader struct {
	steps []readStep
}

type readStep struct {
	data string
	err  error
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	s := r.steps[0]
	n := copy(p, s.data)
	if n < len(s.data) {
		r.steps[0].data = s.data[n:]
		return n, nil
	}
	r.steps = r.steps[1:]
	return n, s.err
}

func TestLineReader(t *testing.T) {
	t.Run("lines split across reads", func(t *testing.T) {
		lr := NewLineReader(&scriptedReader{steps: []readStep{
			{data: "O"},
			{data: "K\r\nEVENT 21 FE80"},
			{data: "::1 00\r\n"},
		}})

		for _, want := range []string{"OK", "EVENT 21 FE80::1 00"} {
			got, err := lr.ReadLine()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("expected %q, got %q", want, got)
			}
		}
		if _, err := lr.ReadLine(); err != io.EOF {
			t.Errorf("expected io.EOF, got: %v", err)
		}
	})

	t.Run("empty read is an idle timeout", func(t *testing.T) {
		lr := NewLineReader(&scriptedReader{steps: []readStep{
			{data: "OK"},
			{},
			{data: "\r\n"},
		}})

		if _, err := lr.ReadLine(); !errors.Is(err, ErrIdleTimeout) {
			t.Fatalf("expected ErrIdleTimeout, got: %v", err)
		}
		got, err := lr.ReadLine()
		if err != nil || got != "OK" {
			t.Errorf("expected OK after idle timeout, got %q, %v", got, err)
		}
	})

	t.Run("unterminated rest returned before error", func(t *testing.T) {
		readErr := errors.New("device gone")
		lr := NewLineReader(&scriptedReader{steps: []readStep{
			{data: "FAIL ER04", err: readErr},
		}})

		got, err := lr.ReadLine()
		if err != nil || got != "FAIL ER04" {
			t.Errorf("expected buffered line, got %q, %v", got, err)
		}
		if _, err := lr.ReadLine(); err != readErr {
			t.Errorf("expected read error, got: %v", err)
		}
	})

	t.Run("overlong line", func(t *testing.T) {
		lr := NewLineReader(&scriptedReader{steps: []readStep{
			{data: strings.Repeat("A", MaxLineLength)},
			{data: "\r\nOK\r\n"},
		}})

		if _, err := lr.ReadLine(); !errors.Is(err, ErrLineTooLong) {
			t.Fatalf("expected ErrLineTooLong, got: %v", err)
		}
	})
}
