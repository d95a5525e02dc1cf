package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/terabiome/labkick/pkg/executor"
	"github.com/terabiome/labkick/pkg/executor/fileops"
)

// Loop mounts images on a Linux host through a read-only loop device.
type Loop struct {
	exec     executor.Executor
	mountDir string
	logger   *slog.Logger
}

// NewLoop creates a loop mounter. Mount points are created under mountDir,
// or the system temp directory when it is empty.
func NewLoop(exec executor.Executor, mountDir string, logger *slog.Logger) *Loop {
	return &Loop{
		exec:     exec,
		mountDir: mountDir,
		logger:   logger.With(slog.String("component", "staging"), slog.String("mounter", "loop")),
	}
}

func (l *Loop) Name() string {
	return "loop"
}

func (l *Loop) Mount(ctx context.Context, image string) (Volume, error) {
	mountPoint, err := os.MkdirTemp(l.mountDir, "labkick-iso-")
	if err != nil {
		return Volume{}, fmt.Errorf("failed to create mount point: %w", err)
	}

	if err := fileops.LoopMount(ctx, l.exec, image, mountPoint); err != nil {
		if rmErr := os.Remove(mountPoint); rmErr != nil {
			l.logger.Warn("failed to remove mount point",
				slog.String("path", mountPoint),
				slog.String("error", rmErr.Error()),
			)
		}
		return Volume{}, err
	}

	return Volume{Root: mountPoint}, nil
}

func (l *Loop) CopyTo(ctx context.Context, vol Volume, dest string) error {
	return fileops.CopyTree(ctx, l.exec, vol.Root, dest)
}

func (l *Loop) Unmount(ctx context.Context, _ string, vol Volume) error {
	if vol.IsZero() {
		return nil
	}

	if err := fileops.Unmount(ctx, l.exec, vol.Root); err != nil {
		return err
	}

	if err := os.Remove(vol.Root); err != nil {
		l.logger.Warn("failed to remove mount point",
			slog.String("path", vol.Root),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
