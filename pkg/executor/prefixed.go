package executor

import (
	"context"
	"io"
)

// Prefixed runs every command through a launcher, e.g. `wsl.exe genisoimage …`
// when the authoring tool lives inside the Linux subsystem of a Windows host.
type Prefixed struct {
	inner  Executor
	prefix []string
}

func NewPrefixed(inner Executor, prefix ...string) *Prefixed {
	p := make([]string, len(prefix))
	copy(p, prefix)

	return &Prefixed{
		inner:  inner,
		prefix: p,
	}
}

func (e *Prefixed) Name() string {
	if len(e.prefix) == 0 {
		return e.inner.Name()
	}
	return e.inner.Name() + "+" + e.prefix[0]
}

func (e *Prefixed) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	if len(e.prefix) == 0 {
		return e.inner.Execute(ctx, stdout, stderr, command, args...)
	}

	full := make([]string, 0, len(e.prefix)+len(args))
	full = append(full, e.prefix[1:]...)
	full = append(full, command)
	full = append(full, args...)

	return e.inner.Execute(ctx, stdout, stderr, e.prefix[0], full...)
}
