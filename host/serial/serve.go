package serial

import (
	"context"
	"errors"
	"io"
)

// Processor consumes bytes received on the line
type Processor interface {
	Process(ctx context.Context, p []byte) error
}

// Serve feeds everything read from port to proc until ctx is done or the
// port reaches EOF. Command errors go to onError and do not stop the loop;
// read errors do.
func Serve(ctx context.Context, port Port, proc Processor, onError func(error)) error {
	if err := port.Flush(); err != nil {
		return err
	}
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := port.Read(buf)
		if n > 0 {
			if perr := proc.Process(ctx, buf[:n]); perr != nil && onError != nil {
				onError(perr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
