package qemuimg

import (
	"context"
	"errors"
	"strconv"

	"github.com/terabiome/labkick/pkg/executor"
)

type CreateOptions struct {
	OutputFile       string
	OutputFileFormat string
	SizeBytes        uint64
}

// Create allocates a new, sparse (dynamically expanding) disk image.
func Create(ctx context.Context, exec executor.Executor, opts CreateOptions) error {
	if opts.OutputFile == "" {
		return errors.New("qemu-img create: empty output file")
	}
	if opts.SizeBytes == 0 {
		return errors.New("qemu-img create: zero size")
	}

	format := opts.OutputFileFormat
	if format == "" {
		format = "qcow2"
	}

	args := []string{
		"create",
		"-f", format,
		opts.OutputFile,
		strconv.FormatUint(opts.SizeBytes, 10),
	}

	_, err := executor.RunChecked(ctx, exec, "qemu-img", args...)
	return err
}
