package lsp

import (
	"fmt"
	"io"
	"os/exec"
)

// Transport carries framed messages to and from the semantic server. The
// production transport wraps a child process's byte pipes; tests inject an
// in-memory fake.
type Transport interface {
	io.Writer
	io.Reader
	Close() error
}

// processTransport runs the language server as a child process and exposes
// its standard input/output pipes.
type processTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// SpawnProcess starts command with args in dir and returns a transport over
// its pipes. Stderr is discarded; servers use it only for boot noise.
func SpawnProcess(command string, args []string, dir string) (Transport, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start semantic server: %w", err)
	}

	return &processTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (t *processTransport) Write(p []byte) (int, error) {
	return t.stdin.Write(p)
}

func (t *processTransport) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

// Close closes the pipes and kills the process if it is still running.
// Safe to call more than once.
func (t *processTransport) Close() error {
	_ = t.stdin.Close()
	_ = t.stdout.Close()

	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	_ = t.cmd.Wait()
	return nil
}
