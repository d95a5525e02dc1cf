package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrToolNotFound is returned when the command is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// maxLoggedCommand caps how much of a command line is logged; PowerShell
// scripts passed via -Command can run long.
const maxLoggedCommand = 240

// Local runs tools as child processes of labkick. Cancelling ctx kills the
// running tool.
type Local struct {
	logger *slog.Logger
}

func NewLocal(logger *slog.Logger) *Local {
	return &Local{
		logger: logger.With(slog.String("executor", "local")),
	}
}

func (e *Local) Name() string {
	return "local"
}

func (e *Local) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	logger := e.logger.With(slog.String("tool", command))
	cmdStr := summarizeCommand(command, args)
	logger.Debug("running tool", slog.String("cmd", cmdStr))

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	if err == nil {
		logger.Debug("tool finished", slog.Int("exit_code", 0), slog.Duration("elapsed", elapsed))
		return 0, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		exitCode := exitErr.ExitCode()
		logger.Warn("tool failed",
			slog.String("cmd", cmdStr),
			slog.Int("exit_code", exitCode),
			slog.Duration("elapsed", elapsed),
		)
		return exitCode, fmt.Errorf("%s exited with code %d: %w", command, exitCode, err)

	case errors.Is(err, exec.ErrNotFound):
		logger.Error("tool is not installed or not on PATH")
		return -1, fmt.Errorf("%w: %s", ErrToolNotFound, command)

	default:
		logger.Error("could not run tool",
			slog.String("cmd", cmdStr),
			slog.String("error", err.Error()),
		)
		return -1, fmt.Errorf("failed to run %s: %w", command, err)
	}
}

func buildCommandString(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

func summarizeCommand(command string, args []string) string {
	s := buildCommandString(command, args)
	if len(s) <= maxLoggedCommand {
		return s
	}
	return s[:maxLoggedCommand] + "..."
}
