package radman

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

const (
	commandTerminator = ";"

	// How long ReadLine waits for a full line before giving up. Also the
	// upper bound on how long the measurement loop blocks between stop
	// checks.
	defaultReadTimeout = 2 * time.Second

	// Milliseconds per underlying serial read tick.
	interCharacterTimeoutMs = 100
)

// Transport is a line-oriented connection to the device. The serial
// implementation below is the real one; tests substitute a scripted fake.
type Transport interface {
	// WriteCommand frames command with the protocol terminator and writes it.
	WriteCommand(command string) error
	// ReadLine returns the next whitespace-trimmed line, or ErrReadTimeout
	// when no full line arrives within the read deadline.
	ReadLine() (string, error)
	Close() error
}

type serialTransport struct {
	port        io.ReadWriteCloser
	readTimeout time.Duration

	// Bytes received past the last returned line.
	pending []byte
	readBuf []byte
}

// Open the serial connection to the device.
func openSerialTransport(device string, baudrate uint) (*serialTransport, error) {
	options := serial.OpenOptions{
		PortName:              device,
		BaudRate:              baudrate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: interCharacterTimeoutMs,
	}

	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &serialTransport{
		port:        port,
		readTimeout: defaultReadTimeout,
		readBuf:     make([]byte, 256),
	}, nil
}

func (t *serialTransport) WriteCommand(command string) error {
	if _, err := t.port.Write([]byte(command + commandTerminator)); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// ReadLine aggregates short inter-character read ticks until a newline
// arrives or the read deadline passes. Partial lines are kept for the next
// call.
func (t *serialTransport) ReadLine() (string, error) {
	deadline := time.Now().Add(t.readTimeout)

	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			line := string(t.pending[:i+1])
			t.pending = t.pending[i+1:]
			return strings.TrimSpace(line), nil
		}

		if time.Now().After(deadline) {
			return "", ErrReadTimeout
		}

		n, err := t.port.Read(t.readBuf)
		if n > 0 {
			t.pending = append(t.pending, t.readBuf[:n]...)
			continue
		}
		if err != nil && err != io.EOF {
			return "", err
		}
		// An empty tick: no bytes arrived within the inter-character window.
	}
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}
