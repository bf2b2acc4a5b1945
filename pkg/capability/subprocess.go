package capability

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// subprocessTransport speaks JSON-RPC over a child process's stdio, one
// message per line.
type subprocessTransport struct {
	command string
	args    []string
	dir     string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
}

func newSubprocessTransport(command string, args []string, dir string) *subprocessTransport {
	return &subprocessTransport{
		command: command,
		args:    args,
		dir:     dir,
	}
}

func (t *subprocessTransport) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd != nil {
		return nil
	}

	cmd := exec.Command(t.command, t.args...)
	cmd.Dir = t.dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", t.command, err)
	}

	scanner := bufio.NewScanner(stdout)
	// Tool results can carry large payloads; the default 64KB line limit is
	// too small.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	t.cmd = cmd
	t.stdin = stdin
	t.scanner = scanner
	return nil
}

func (t *subprocessTransport) write(data []byte) error {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()

	if stdin == nil {
		return fmt.Errorf("subprocess not started")
	}
	_, err := stdin.Write(append(data, '\n'))
	return err
}

func (t *subprocessTransport) read() ([]byte, error) {
	if t.scanner == nil {
		return nil, fmt.Errorf("subprocess not started")
	}
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := make([]byte, len(t.scanner.Bytes()))
	copy(line, t.scanner.Bytes())
	return line, nil
}

func (t *subprocessTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil {
			return err
		}
		// Reap the child; the error here is the kill signal, not a failure.
		t.cmd.Wait()
	}
	return nil
}
