// Package console implements an interactive prompt for typing wire requests
// against a processor.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/cukewire/pkg/processor"
	"github.com/ormasoftchile/cukewire/pkg/wire"
)

const prompt = "cukewire> "

// Console is a readline REPL. Each line that is not a console command is
// sent to the processor verbatim and the raw response is printed.
type Console struct {
	proc        *processor.Processor
	output      io.Writer
	input       io.ReadCloser
	historyFile string
}

// Option configures a Console.
type Option func(*Console)

// WithOutput redirects console output. Defaults to stdout.
func WithOutput(w io.Writer) Option { return func(c *Console) { c.output = w } }

// WithInput reads lines from r instead of the terminal.
func WithInput(r io.ReadCloser) Option { return func(c *Console) { c.input = r } }

// WithHistoryFile persists entered lines.
func WithHistoryFile(path string) Option { return func(c *Console) { c.historyFile = path } }

// New creates a console for proc.
func New(proc *processor.Processor, opts ...Option) *Console {
	c := &Console{proc: proc, output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads lines until quit, EOF, interrupt or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	completer := readline.NewPrefixCompleter(
		readline.PcItem(wire.ListCommand),
		readline.PcItem(wire.InvokePrefix),
		readline.PcItem("list"),
		readline.PcItem("match"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    completer,
		HistoryFile:     c.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdin:           c.input,
		Stdout:          c.output,
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(c.output, "cukewire console: %d step definition(s)\n", c.proc.Catalog().Len())
	fmt.Fprintf(c.output, "Type 'help' for available commands.\n\n")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if c.handle(line) {
			return nil
		}
	}
}

// handle executes one line and reports whether the console should exit.
func (c *Console) handle(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "help", "?":
		c.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintln(c.output, "bye")
		return true
	case "list", "ls":
		fmt.Fprintln(c.output, c.proc.Process(wire.ListCommand))
	case "match", "m":
		c.handleMatch(strings.TrimSpace(rest))
	default:
		fmt.Fprintln(c.output, c.proc.Process(line))
	}
	return false
}

func (c *Console) handleMatch(text string) {
	if text == "" {
		fmt.Fprintln(c.output, "usage: match <step text>")
		return
	}
	matches := c.proc.Catalog().Match(text)
	if len(matches) == 0 {
		fmt.Fprintf(c.output, "no step matches %q\n", text)
		return
	}
	for _, m := range matches {
		fmt.Fprintf(c.output, "%s  %s  %q\n", m.Definition.ID(), m.Definition.Name(), m.Args)
	}
}

func (c *Console) handleHelp() {
	fmt.Fprint(c.output, `Commands:
  list_step_definitions     send a list request
  invoke:{"id":..,"args":[..]}
                            send an invoke request
  list, ls                  same as list_step_definitions
  match, m <text>           show step definitions matching text
  help, ?                   show this help
  quit, q                   leave the console
Any other line is sent to the processor as-is.
`)
}
