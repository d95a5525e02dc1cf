package main

import (
	"fmt"
	"io"

	"github.com/terabiome/labkick/pkg/bootcfg"
)

// runGrub prints the label and the rewritten descriptor, or rewrites the
// file in place when write is set.
func runGrub(w io.Writer, path string, write bool) error {
	if write {
		result, err := bootcfg.RewriteFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "label: %s\nrewrote %s (directive on line %d)\n", result.Label, path, result.InjectedLine+1)
		return nil
	}

	lines, err := bootcfg.ReadFile(path)
	if err != nil {
		return err
	}

	result, err := bootcfg.Rewrite(lines)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(w, "label: %s\n", result.Label)
	for _, line := range result.Lines {
		fmt.Fprintln(w, line)
	}
	return nil
}
