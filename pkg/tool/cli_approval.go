package tool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CLIDecider resolves approvals by prompting on an interactive terminal.
// Prompts are serialized: concurrent approval requests take turns, and a
// single reader goroutine owns the input stream so answers always reach the
// prompt that asked for them.
type CLIDecider struct {
	writer io.Writer

	mu    sync.Mutex
	lines chan string
	errs  chan error
}

// NewCLIDecider creates a decider that prompts over the given streams
func NewCLIDecider(reader io.Reader, writer io.Writer) *CLIDecider {
	c := &CLIDecider{
		writer: writer,
		lines:  make(chan string),
		errs:   make(chan error, 1),
	}

	go func() {
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			c.errs <- err
		} else {
			c.errs <- io.EOF
		}
		close(c.lines)
	}()

	return c
}

// Decide implements Decider by asking the user for y/n
func (c *CLIDecider) Decide(ctx context.Context, req ApprovalRequest) (Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.writer, "")
	fmt.Fprintln(c.writer, "  ── approval required ──")
	fmt.Fprintf(c.writer, "  Agent: %s\n", req.Agent)
	fmt.Fprintf(c.writer, "  Tool:  %s\n", req.Tool)
	if len(req.Args) > 0 {
		fmt.Fprintf(c.writer, "  Args:  %v\n", req.Args)
	}
	fmt.Fprint(c.writer, "  Allow this call? [y/N]: ")

	select {
	case line, ok := <-c.lines:
		if !ok {
			// Input is exhausted; keep the terminal error for later callers.
			err := <-c.errs
			c.errs <- err
			return Decision{}, err
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			return Decision{Approved: true, Reason: "approved interactively"}, nil
		}
		return Decision{Approved: false, Reason: "denied interactively"}, nil
	case <-ctx.Done():
		fmt.Fprintln(c.writer, "\n  (approval timed out, denying)")
		return Decision{Approved: false, Reason: "timeout"}, ctx.Err()
	}
}
