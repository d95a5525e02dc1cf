package bootcfg

import (
	"strings"
	"unicode"
)

type InjectorState int

const (
	NotInjected InjectorState = iota
	Injected
)

func (s InjectorState) String() string {
	switch s {
	case NotInjected:
		return "not-injected"
	case Injected:
		return "injected"
	default:
		return "unknown"
	}
}

// Injector adds the kickstart directive to the first eligible loader line it
// is shown and leaves every later line alone.
type Injector struct {
	directive string
	state     InjectorState
}

func NewInjector(label string) *Injector {
	return &Injector{
		directive: Directive(label),
		state:     NotInjected,
	}
}

func (i *Injector) State() InjectorState {
	return i.state
}

// Apply returns the line, modified when this call performed the injection.
func (i *Injector) Apply(line string) (string, bool) {
	if i.state == Injected || !isEligibleLoader(line) {
		return line, false
	}

	i.state = Injected
	return injectAfterQuiet(line, i.directive), true
}

// injectAfterQuiet places the directive right after the `quiet` argument,
// or at the end of the arguments when there is none.
func injectAfterQuiet(line, directive string) string {
	if end := tokenEnd(line, "quiet"); end >= 0 {
		return line[:end] + " " + directive + line[end:]
	}
	return strings.TrimRightFunc(line, unicode.IsSpace) + " " + directive
}

// tokenEnd returns the byte offset just past the first whitespace-delimited
// occurrence of tok, or -1.
func tokenEnd(line, tok string) int {
	i := 0
	for i < len(line) {
		for i < len(line) && isBlank(line[i]) {
			i++
		}
		start := i
		for i < len(line) && !isBlank(line[i]) {
			i++
		}
		if start < i && line[start:i] == tok {
			return i
		}
	}
	return -1
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t'
}
