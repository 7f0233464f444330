package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// HandshakeString is exchanged verbatim in both directions before any packet.
const HandshakeString = "JDWP-Handshake"

var ErrHandshakeMismatch = errors.New("transport: jdwp handshake mismatch")

// Handshake performs the debugger side of the JDWP handshake: send the
// handshake string and expect the VM to echo it.
func Handshake(t Transport, timeout time.Duration) error {
	deadline := deadlineAfter(timeout)
	if err := writeAll(t, []byte(HandshakeString), deadline); err != nil {
		return fmt.Errorf("transport: write handshake: %w", err)
	}
	got := make([]byte, len(HandshakeString))
	if err := readAll(t, got, deadline); err != nil {
		return fmt.Errorf("transport: read handshake: %w", err)
	}
	if !bytes.Equal(got, []byte(HandshakeString)) {
		return fmt.Errorf("%w: got %q", ErrHandshakeMismatch, got)
	}
	return nil
}

// AcceptHandshake performs the VM side: expect the handshake string and echo it.
func AcceptHandshake(t Transport, timeout time.Duration) error {
	deadline := deadlineAfter(timeout)
	got := make([]byte, len(HandshakeString))
	if err := readAll(t, got, deadline); err != nil {
		return fmt.Errorf("transport: read handshake: %w", err)
	}
	if !bytes.Equal(got, []byte(HandshakeString)) {
		return fmt.Errorf("%w: got %q", ErrHandshakeMismatch, got)
	}
	if err := writeAll(t, got, deadline); err != nil {
		return fmt.Errorf("transport: write handshake: %w", err)
	}
	return nil
}

func deadlineAfter(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func writeAll(t Transport, b []byte, deadline time.Time) error {
	for len(b) > 0 {
		n, err := t.Write(b, deadline)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

func readAll(t Transport, b []byte, deadline time.Time) error {
	read := 0
	for read < len(b) {
		n, err := t.Read(b[read:], deadline)
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) && read < len(b) {
				return io.ErrUnexpectedEOF
			}
			if read == len(b) {
				return nil
			}
			return err
		}
	}
	return nil
}
