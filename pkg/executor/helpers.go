package executor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
)

func RunAndCapture(ctx context.Context, exec Executor, command string, args ...string) (*Result, error) {
	var outBuf, errBuf bytes.Buffer

	exitCode, err := exec.Execute(ctx, &outBuf, &errBuf, command, args...)

	return &Result{
		ExitCode: exitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Error:    err,
	}, err
}

// RunChecked is RunAndCapture that treats a non-zero exit code as a failure
// and folds the captured output into the returned error.
func RunChecked(ctx context.Context, exec Executor, command string, args ...string) (*Result, error) {
	result, err := RunAndCapture(ctx, exec, command, args...)
	if err == nil && result.ExitCode != 0 {
		err = fmt.Errorf("command exited with code %d", result.ExitCode)
	}
	if err != nil {
		return result, fmt.Errorf("%s failed: %w\nstdout: %s\nstderr: %s",
			command,
			err,
			strings.TrimSpace(result.Stdout),
			strings.TrimSpace(result.Stderr),
		)
	}

	return result, nil
}
