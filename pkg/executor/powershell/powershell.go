// Package powershell drives Windows PowerShell cmdlets (Hyper-V, Storage)
// through an executor.
package powershell

import (
	"context"
	"strings"

	"github.com/terabiome/labkick/pkg/executor"
)

const Binary = "PowerShell"

// Run executes a script with -NoProfile -NonInteractive and returns its
// stdout. A non-zero exit code is an error.
func Run(ctx context.Context, exec executor.Executor, script string) (string, error) {
	result, err := executor.RunChecked(ctx, exec, Binary,
		"-NoProfile",
		"-NonInteractive",
		"-Command", script,
	)
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// Cmdlet builds `Name -Param value …` with every value quoted as a literal.
// Switch parameters are passed with an empty value.
func Cmdlet(name string, params ...Param) string {
	var b strings.Builder
	b.WriteString(name)
	for _, p := range params {
		b.WriteString(" -")
		b.WriteString(p.Name)
		if p.raw {
			b.WriteString(" ")
			b.WriteString(p.Value)
			continue
		}
		if p.Value != "" {
			b.WriteString(" ")
			b.WriteString(Quote(p.Value))
		}
	}
	return b.String()
}

type Param struct {
	Name  string
	Value string
	raw   bool
}

func P(name, value string) Param {
	return Param{Name: name, Value: value}
}

// Switch is a parameter without a value, e.g. -Dynamic.
func Switch(name string) Param {
	return Param{Name: name}
}

// Expr passes value unquoted: numbers, enum values or sub-expressions.
func Expr(name, value string) Param {
	return Param{Name: name, Value: value, raw: true}
}

// Quote returns s as a single-quoted PowerShell literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
