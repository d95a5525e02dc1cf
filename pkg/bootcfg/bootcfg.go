package bootcfg

import (
	"errors"
	"regexp"
	"strings"
)

const (
	// DescriptorPath is the UEFI GRUB menu relative to the tree root.
	DescriptorPath = "EFI/BOOT/grub.cfg"

	SearchMarker       = "search"
	LoaderMarker       = "linuxefi"
	DefaultEntryMarker = "set default"
	TimeoutMarker      = "set timeout"

	KickstartPath = "/ks.cfg"
	DefaultEntry  = "0"
	Timeout       = "5"

	directiveKey = "inst.ks="
)

// ExcludedKeywords mark loader lines that are never modified: media check,
// rescue and text-mode install entries.
var ExcludedKeywords = []string{"check", "rescue", "text"}

var (
	ErrLabelNotFound    = errors.New("boot descriptor has no volume search line")
	ErrNoLoaderEntry    = errors.New("boot descriptor has no eligible loader entry")
	ErrAlreadyRewritten = errors.New("boot descriptor already carries a kickstart directive")
)

var (
	defaultEntryRe = regexp.MustCompile(`(set default=)("?)[^"\s]*("?)`)
	timeoutRe      = regexp.MustCompile(`(set timeout=)("?)[^"\s]*("?)`)
)

// Directive returns the kernel argument pointing the installer at the
// kickstart payload on the volume with the given label.
func Directive(label string) string {
	return directiveKey + "hd:LABEL=" + label + ":" + KickstartPath
}

// Result is the outcome of a rewrite.
type Result struct {
	Lines []string
	Label string
	// InjectedLine is the index of the line that received the directive.
	InjectedLine int
}

// Discover scans the descriptor for the volume label and for a loader line
// that can take the directive. When several search lines exist the last one
// wins.
func Discover(lines []string) (label string, injectable bool, err error) {
	found := false
	for _, line := range lines {
		if strings.Contains(line, SearchMarker) {
			if l, ok := labelOf(line); ok {
				label = l
				found = true
			}
		}
		if isEligibleLoader(line) {
			injectable = true
		}
	}

	if !found {
		return "", injectable, ErrLabelNotFound
	}
	return label, injectable, nil
}

// Rewrite produces the modified descriptor. The label is discovered from the
// input before any line is changed; the directive lands on exactly one line,
// while every default-entry and timeout setting is rewritten.
//
// A descriptor that was already rewritten yields ErrAlreadyRewritten along
// with a Result carrying only the discovered label.
func Rewrite(lines []string) (Result, error) {
	label, injectable, err := Discover(lines)
	if err != nil {
		return Result{}, err
	}

	for _, line := range lines {
		if strings.Contains(line, LoaderMarker) && strings.Contains(line, directiveKey) {
			return Result{Label: label}, ErrAlreadyRewritten
		}
	}

	if !injectable {
		return Result{}, ErrNoLoaderEntry
	}

	injector := NewInjector(label)
	out := make([]string, len(lines))
	injectedAt := -1

	for i, line := range lines {
		if updated, ok := injector.Apply(line); ok {
			line = updated
			injectedAt = i
		}
		line = setDefaultEntry(line)
		line = setTimeout(line)
		out[i] = line
	}

	return Result{
		Lines:        out,
		Label:        label,
		InjectedLine: injectedAt,
	}, nil
}

func labelOf(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	label := strings.Trim(fields[len(fields)-1], `'"`)
	if label == "" {
		return "", false
	}
	return label, true
}

func isEligibleLoader(line string) bool {
	if !strings.Contains(line, LoaderMarker) {
		return false
	}
	for _, kw := range ExcludedKeywords {
		if strings.Contains(line, kw) {
			return false
		}
	}
	return true
}

func setDefaultEntry(line string) string {
	if !strings.Contains(line, DefaultEntryMarker) {
		return line
	}
	return defaultEntryRe.ReplaceAllString(line, "${1}${2}"+DefaultEntry+"${3}")
}

func setTimeout(line string) string {
	if !strings.Contains(line, TimeoutMarker) {
		return line
	}
	return timeoutRe.ReplaceAllString(line, "${1}${2}"+Timeout+"${3}")
}
