package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// nodeWrapper reads the sliced payload script from stdin, evaluates it
// in a sloppy scope, and prints the section list as JSON.
const nodeWrapper = `const src = require("fs").readFileSync(0, "utf8");
(0, eval)(src);
process.stdout.write(JSON.stringify(reactContext.` + payloadPath + `));`

// ExitError reports a non-zero evaluator process exit.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("evaluator exited with code %d: %s", e.Code, strings.TrimSpace(e.Stderr))
}

// Node evaluates payload scripts in a node subprocess per call.
type Node struct {
	Command string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewNode builds a subprocess evaluator running the given command
// (typically "node").
func NewNode(command string, timeout time.Duration, logger *zap.Logger) *Node {
	if command == "" {
		command = "node"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Node{Command: command, Timeout: timeout, Logger: logger}
}

// Evaluate pipes the script through the subprocess and returns its
// stdout. A non-zero exit surfaces as *ExitError carrying stderr.
func (e *Node) Evaluate(ctx context.Context, script string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Command, "-e", nodeWrapper)
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("evaluator timed out: %w", runCtx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return "", fmt.Errorf("run evaluator: %w", err)
	}
	return stdout.String(), nil
}
