package mcu

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"motorlab/cli"
	"motorlab/core"
	"motorlab/settings"
)

// board runs the console interpreter behind a serial.Port
type board struct {
	in     *cli.Interpreter
	out    bytes.Buffer
	closed bool
}

func newBoard() *board {
	b := &board{}
	s := settings.New(core.DefaultCalibration(0, 0), &settings.MemoryStore{})
	b.in = cli.NewInterpreter(nil, s, &b.out)
	return b
}

func (b *board) Write(p []byte) (int, error) {
	b.in.Process(context.Background(), p)
	return len(p), nil
}

func (b *board) Read(p []byte) (int, error) {
	if b.out.Len() == 0 {
		return 0, nil
	}
	return b.out.Read(p)
}

func (b *board) Close() error { b.closed = true; return nil }
func (b *board) Flush() error { b.out.Reset(); return nil }

func TestAttachAndCommand(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b := newBoard()
	m := NewMCU()
	if err := m.Attach(ctx, b); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if m.Identity() != Identity {
		t.Errorf("identity %q", m.Identity())
	}
	if b.in.Echo() {
		t.Errorf("echo still on")
	}

	var out bytes.Buffer
	if err := m.Command(ctx, "KM 1800", &out); err != nil {
		t.Fatalf("Command: %v", err)
	}
	if out.String() != "KM = 1800.0\n" {
		t.Errorf("reply %q", out.String())
	}

	out.Reset()
	if err := m.Command(ctx, "$", &out); err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(out.String(), "KM = 1800.0") {
		t.Errorf("settings %q", out.String())
	}

	if err := m.Close(); err != nil || !b.closed {
		t.Errorf("Close: %v closed %v", err, b.closed)
	}
	if err := m.Command(ctx, "KM", &out); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v after Close", err)
	}
}

type silentPort struct{ board }

func (s *silentPort) Write(p []byte) (int, error) { return len(p), nil }

func TestCommandTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	m := NewMCU()
	err := m.Attach(ctx, &silentPort{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
