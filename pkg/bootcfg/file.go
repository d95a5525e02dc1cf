package bootcfg

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// ReadFile loads a descriptor as lines without terminators.
func ReadFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open boot descriptor %s: %w", path, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read boot descriptor %s: %w", path, err)
	}

	return lines, nil
}

// WriteFile replaces the descriptor. Files copied off an installer medium
// are read-only, so the write bit is restored first. Lines always end in LF.
func WriteFile(path string, lines []string) error {
	if err := os.Chmod(path, 0o644); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to make boot descriptor %s writable: %w", path, err)
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write boot descriptor %s: %w", path, err)
	}
	return nil
}

// RewriteFile rewrites the descriptor at path in place.
func RewriteFile(path string) (Result, error) {
	lines, err := ReadFile(path)
	if err != nil {
		return Result{}, err
	}

	result, err := Rewrite(lines)
	if err != nil {
		return Result{Label: result.Label}, fmt.Errorf("%s: %w", path, err)
	}

	if err := WriteFile(path, result.Lines); err != nil {
		return Result{}, err
	}
	return result, nil
}
