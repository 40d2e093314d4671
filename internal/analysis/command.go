package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Placeholders substituted in configured command arguments.
const (
	PlaceholderCIF = "{cif}"
	PlaceholderDir = "{dir}"
)

// waitDelay bounds how long output pipes are drained after a tool is killed.
const waitDelay = 2 * time.Second

// Command describes how to launch an external tool.
type Command struct {
	// Path is the executable name or path, resolved through PATH.
	Path string
	// Args are fixed leading arguments. They may contain placeholders.
	Args []string
	// Timeout bounds one invocation. Zero lets the tool run to completion.
	Timeout time.Duration
	// Env entries are appended to the inherited environment.
	Env []string
}

// Configured reports whether an executable was provided.
func (c Command) Configured() bool { return strings.TrimSpace(c.Path) != "" }

// CommandError reports a tool that could not be started, exited non-zero or
// timed out.
type CommandError struct {
	Tool     string
	Path     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s tool %s", e.Tool, e.Path)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + firstLines(stderr, 5)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// invocation is one prepared run of a Command.
type invocation struct {
	tool  string
	cmd   Command
	dir   string
	args  []string
	stdin io.Reader
}

func (inv invocation) run(ctx context.Context) ([]byte, error) {
	if !inv.cmd.Configured() {
		return nil, fmt.Errorf("%s: %w", inv.tool, ErrNotConfigured)
	}
	if inv.cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cmd.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, inv.cmd.Path, inv.args...)
	cmd.Dir = inv.dir
	cmd.WaitDelay = waitDelay
	if len(inv.cmd.Env) > 0 {
		cmd.Env = append(cmd.Environ(), inv.cmd.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = inv.stdin

	if err := cmd.Run(); err != nil {
		cerr := &CommandError{
			Tool:   inv.tool,
			Path:   inv.cmd.Path,
			Args:   inv.args,
			Stderr: stderr.String(),
			Err:    err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			cerr.Err = errors.Join(err, ctxErr)
		}
		return nil, cerr
	}
	return stdout.Bytes(), nil
}

// expandArgs substitutes placeholders in the configured arguments and reports
// whether the CIF placeholder was present.
func expandArgs(args []string, cifPath, dir string) ([]string, bool) {
	out := make([]string, 0, len(args))
	sawCIF := false
	for _, a := range args {
		if strings.Contains(a, PlaceholderCIF) {
			sawCIF = true
			a = strings.ReplaceAll(a, PlaceholderCIF, cifPath)
		}
		out = append(out, strings.ReplaceAll(a, PlaceholderDir, dir))
	}
	return out, sawCIF
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, " | ")
}
