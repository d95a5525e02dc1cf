// Package executortest provides a scriptable executor for tests.
package executortest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Call is one recorded invocation.
type Call struct {
	Command string
	Args    []string
}

// Line renders the call the way it would appear on a shell.
func (c Call) Line() string {
	if len(c.Args) == 0 {
		return c.Command
	}
	return c.Command + " " + strings.Join(c.Args, " ")
}

// Response scripts what a matching invocation prints and returns.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

type rule struct {
	match    func(Call) bool
	response Response
}

// Fake records every call and answers from the first matching rule.
// Unmatched calls succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	calls []Call
	rules []rule
	// OnExecute runs before a response is written. Tests use it to emulate
	// side effects of a tool, such as the file an authoring tool produces.
	OnExecute func(Call) error
}

func New() *Fake {
	return &Fake{}
}

func (f *Fake) Name() string {
	return "fake"
}

// On registers a response for calls whose command line contains substr.
func (f *Fake) On(substr string, resp Response) *Fake {
	return f.OnMatch(func(c Call) bool { return strings.Contains(c.Line(), substr) }, resp)
}

// OnMatch registers a response for calls accepted by match.
func (f *Fake) OnMatch(match func(Call) bool, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{match: match, response: resp})
	return f
}

// Fail makes calls containing substr exit with code 1.
func (f *Fake) Fail(substr, stderr string) *Fake {
	return f.On(substr, Response{
		Stderr:   stderr,
		ExitCode: 1,
		Err:      errors.New("exit status 1"),
	})
}

func (f *Fake) Execute(ctx context.Context, stdout, stderr io.Writer, command string, args ...string) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	call := Call{Command: command, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var resp Response
	for _, r := range f.rules {
		if r.match(call) {
			resp = r.response
			break
		}
	}
	hook := f.OnExecute
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return -1, err
		}
	}

	if stdout != nil {
		_, _ = io.WriteString(stdout, resp.Stdout)
	}
	if stderr != nil {
		_, _ = io.WriteString(stderr, resp.Stderr)
	}

	if resp.Err != nil {
		return resp.ExitCode, fmt.Errorf("command exited with code %d: %w", resp.ExitCode, resp.Err)
	}
	return resp.ExitCode, nil
}

// Calls returns a copy of the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Lines returns the recorded invocations as command lines.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = c.Line()
	}
	return lines
}

// Find returns the first call whose command line contains substr.
func (f *Fake) Find(substr string) (Call, bool) {
	for _, c := range f.Calls() {
		if strings.Contains(c.Line(), substr) {
			return c, true
		}
	}
	return Call{}, false
}
