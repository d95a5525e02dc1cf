package fileops

import (
	"context"
	"fmt"

	"github.com/terabiome/labkick/pkg/executor"
)

func RemoveFile(ctx context.Context, exec executor.Executor, path string) error {
	result, err := executor.RunAndCapture(ctx, exec, "rm", "-f", path)
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w\nstderr: %s", path, err, result.Stderr)
	}
	return nil
}

func CreateDirectory(ctx context.Context, exec executor.Executor, path string) error {
	result, err := executor.RunAndCapture(ctx, exec, "mkdir", "-p", path)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w\nstderr: %s", path, err, result.Stderr)
	}
	return nil
}

// CopyTree copies the contents of src into dst, overwriting existing files.
// Modes are not preserved so the copy of a read-only medium stays writable.
func CopyTree(ctx context.Context, exec executor.Executor, src, dst string) error {
	result, err := executor.RunAndCapture(ctx, exec, "cp", "-r", "--no-preserve=mode", src+"/.", dst)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w\nstderr: %s", src, dst, err, result.Stderr)
	}
	return nil
}

// LoopMount mounts an image file read-only on mountPoint.
func LoopMount(ctx context.Context, exec executor.Executor, image, mountPoint string) error {
	result, err := executor.RunAndCapture(ctx, exec, "mount", "-o", "loop,ro", image, mountPoint)
	if err != nil {
		return fmt.Errorf("failed to mount %s on %s: %w\nstderr: %s", image, mountPoint, err, result.Stderr)
	}
	return nil
}

func Unmount(ctx context.Context, exec executor.Executor, mountPoint string) error {
	result, err := executor.RunAndCapture(ctx, exec, "umount", mountPoint)
	if err != nil {
		return fmt.Errorf("failed to unmount %s: %w\nstderr: %s", mountPoint, err, result.Stderr)
	}
	return nil
}
