//go:build !tinygo

package cli

import (
	"context"
	"strings"

	"github.com/abiosoft/ishell"
)

// contextWriter sends command output through the shell
type contextWriter struct {
	c *ishell.Context
}

func (w contextWriter) Write(p []byte) (int, error) {
	w.c.Print(string(p))
	return len(p), nil
}

// Shell returns an interactive terminal over the interpreter's commands,
// registered in lower case.
// Command output and trial telemetry go to the shell while it runs.
func (in *Interpreter) Shell(ctx context.Context) *ishell.Shell {
	shell := ishell.New()
	shell.Println("motorlab bench shell")
	for _, cmd := range in.reg.Commands() {
		name := cmd.Name
		if name == "HELP" {
			continue // the shell has its own
		}
		shell.AddCmd(&ishell.Cmd{
			Name: strings.ToLower(name),
			Help: cmd.Help,
			Func: func(c *ishell.Context) {
				out := in.out
				in.out = contextWriter{c}
				if in.robot != nil {
					in.robot.SetOutput(in.out)
				}
				defer func() {
					in.out = out
					if in.robot != nil {
						in.robot.SetOutput(out)
					}
				}()
				in.Execute(ctx, strings.Join(append([]string{name}, c.Args...), " "))
			},
		})
	}
	return shell
}
