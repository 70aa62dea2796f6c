package wire

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const maxLineSize = 1024 * 1024

// Handler turns one request line into one response line.
type Handler interface {
	Process(request string) string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(request string) string

// Process calls f.
func (f HandlerFunc) Process(request string) string { return f(request) }

// Serve pumps newline-delimited requests from r to h and writes each response
// to w followed by a newline. Blank lines are skipped. It returns nil at EOF
// and ctx.Err() if the context is cancelled; cancellation is observed between
// lines only.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(out, h.Process(line)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("flush response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return ctx.Err()
}
