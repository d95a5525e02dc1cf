package executor

import (
	"context"
	"io"
)

// Executor runs external tools. Every engine the pipeline drives (hypervisor
// control surface, image mounter, ISO authoring) is reached through it.
type Executor interface {
	Execute(ctx context.Context, stdout, stderr io.Writer, command string, args ...string) (exitCode int, err error)
	Name() string
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Error    error
}
