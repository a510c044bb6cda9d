package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/shlex"

	"motorlab/settings"
	"motorlab/trial"
)

// Line editing
const (
	InputBufferSize = 32
	backspace       = 0x08
	prompt          = "> "
)

// Interpreter reads command lines and runs them against a robot and its
// settings. It is used from one goroutine.
type Interpreter struct {
	reg      *Registry
	robot    *trial.Robot
	settings *settings.Settings
	out      io.Writer

	echo bool
	line []byte
}

// NewInterpreter creates an interpreter with the bench command set.
// Output, including trial telemetry, goes to out.
func NewInterpreter(robot *trial.Robot, s *settings.Settings, out io.Writer) *Interpreter {
	if out == nil {
		out = io.Discard
	}
	in := &Interpreter{
		reg:      NewRegistry(),
		robot:    robot,
		settings: s,
		out:      out,
		echo:     true,
		line:     make([]byte, 0, InputBufferSize),
	}
	if robot != nil {
		robot.SetOutput(out)
	}
	in.registerCommands()
	return in
}

// Registry returns the command table
func (in *Interpreter) Registry() *Registry {
	return in.reg
}

// SetEcho turns input echo on or off
func (in *Interpreter) SetEcho(on bool) {
	in.echo = on
}

// Echo reports whether input is echoed
func (in *Interpreter) Echo() bool {
	return in.echo
}

// Prompt writes the input prompt
func (in *Interpreter) Prompt() {
	io.WriteString(in.out, prompt)
}

// Tokenize splits a line into upper case arguments. Spaces, commas and '='
// separate tokens; quoting follows shell rules. A single character line is
// returned as is so that '#', '$' and friends are commands, not comments.
func Tokenize(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if len(line) == 1 {
		return []string{line}, nil
	}
	line = strings.NewReplacer(",", " ", "=", " ").Replace(line)
	args, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", line, err)
	}
	for i := range args {
		args[i] = strings.ToUpper(args[i])
	}
	return args, nil
}

// Execute tokenizes and runs one line. Unknown commands are reported on the
// output as well as returned.
func (in *Interpreter) Execute(ctx context.Context, line string) error {
	args, err := Tokenize(line)
	if err != nil {
		fmt.Fprintf(in.out, "%v\n", err)
		return err
	}
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "ECHO":
		in.SetEcho(len(args) > 1 && args[1] == "ON")
		return nil
	case "?":
		in.reg.Help(in.out)
		return nil
	}

	err = in.reg.Dispatch(ctx, in.out, args)
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			fmt.Fprintf(in.out, "\"%s\" Unknown Command\n", args[0])
		} else {
			fmt.Fprintf(in.out, "%s: %v\n", args[0], err)
		}
	}
	return err
}

// ProcessByte feeds one byte of serial input. Printable characters are
// upper cased, echoed and buffered up to InputBufferSize-1; backspace
// edits; a line feed runs the line and prompts again. Everything else,
// carriage return included, is dropped.
func (in *Interpreter) ProcessByte(ctx context.Context, b byte) error {
	switch {
	case b == '\n':
		in.write(b)
		line := string(in.line)
		in.line = in.line[:0]
		err := in.Execute(ctx, line)
		in.Prompt()
		return err
	case b == backspace:
		if len(in.line) > 0 {
			in.line = in.line[:len(in.line)-1]
			in.write(backspace)
			in.write(' ')
			in.write(backspace)
		}
	case b >= ' ' && b <= '~':
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		in.write(b)
		if len(in.line) < InputBufferSize-1 {
			in.line = append(in.line, b)
		}
	}
	return nil
}

// Process feeds a chunk of serial input, returning the first command error
func (in *Interpreter) Process(ctx context.Context, p []byte) error {
	var first error
	for _, b := range p {
		if err := in.ProcessByte(ctx, b); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (in *Interpreter) write(b byte) {
	if in.echo {
		in.out.Write([]byte{b})
	}
}
