// Package mcu talks to a motorlab board over its serial console.
package mcu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"motorlab/host/serial"
)

// Identity is the *IDN? reply of a compatible board
const Identity = "MOTORLAB V1.0"

// consolePrompt ends every reply
const consolePrompt = "> "

var (
	// ErrNotConnected is returned before Connect or after Close
	ErrNotConnected = errors.New("not connected to MCU")

	// ErrWrongBoard is returned when the board does not identify as motorlab
	ErrWrongBoard = errors.New("unexpected board identity")
)

// MCU represents a connection to a motorlab board
type MCU struct {
	port serial.Port

	// Connection state
	connected bool
	identity  string
	pending   []byte // bytes read past the last prompt
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		connected: false,
	}
}

// Connect opens device with the default console settings
func (m *MCU) Connect(ctx context.Context, device string) error {
	return m.ConnectWithConfig(ctx, serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(ctx context.Context, cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := m.Attach(ctx, port); err != nil {
		port.Close()
		return err
	}
	return nil
}

// Attach takes over an open port, turns console echo off and checks the
// board identity.
func (m *MCU) Attach(ctx context.Context, port serial.Port) error {
	m.port = port
	m.connected = true
	m.pending = m.pending[:0]

	if err := port.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	// A fresh console may still be echoing; the reply is discarded.
	if err := m.Command(ctx, "ECHO OFF", io.Discard); err != nil {
		return fmt.Errorf("echo off: %w", err)
	}

	var id bytes.Buffer
	if err := m.Command(ctx, "*IDN?", &id); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	m.identity = strings.TrimSpace(id.String())
	if m.identity != Identity {
		return fmt.Errorf("%w: %q", ErrWrongBoard, m.identity)
	}
	return nil
}

// Identity returns the board's *IDN? reply
func (m *MCU) Identity() string {
	return m.identity
}

// Command sends one console line and copies the reply to out as it
// arrives, returning once the board prompts again. Trials stream their
// telemetry through out, so long commands need a generous ctx deadline.
func (m *MCU) Command(ctx context.Context, line string, out io.Writer) error {
	if !m.connected {
		return ErrNotConnected
	}
	if _, err := io.WriteString(m.port, line+"\n"); err != nil {
		return fmt.Errorf("send %q: %w", line, err)
	}

	var partial []byte
	partial = append(partial, m.pending...)
	m.pending = m.pending[:0]
	buf := make([]byte, 256)
	for {
		// emit complete lines, keep the tail
		for {
			i := bytes.IndexByte(partial, '\n')
			if i < 0 {
				break
			}
			if _, err := out.Write(partial[:i+1]); err != nil {
				return err
			}
			partial = partial[i+1:]
		}
		if bytes.HasPrefix(partial, []byte(consolePrompt)) {
			m.pending = append(m.pending, partial[len(consolePrompt):]...)
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := m.port.Read(buf)
		partial = append(partial, buf[:n]...)
		if err != nil {
			return fmt.Errorf("reply to %q: %w", line, err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if !m.connected {
		return nil
	}
	m.connected = false
	return m.port.Close()
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}
