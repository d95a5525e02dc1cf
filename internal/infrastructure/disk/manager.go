package disk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/terabiome/labkick/pkg/executor"
	"github.com/terabiome/labkick/pkg/executor/fileops"
	"github.com/terabiome/labkick/pkg/executor/qemuimg"
)

// Manager manages VM disk images.
type Manager struct {
	exec   executor.Executor
	logger *slog.Logger
}

// NewManager creates a new disk manager.
func NewManager(exec executor.Executor, logger *slog.Logger) *Manager {
	return &Manager{
		exec:   exec,
		logger: logger.With(slog.String("component", "disk")),
	}
}

// CreateDisk creates an empty, dynamically expanding QCOW2 disk. The parent
// directory is created when missing.
func (m *Manager) CreateDisk(ctx context.Context, path string, sizeBytes uint64) error {
	m.logger.Debug("creating qcow2 disk",
		slog.String("path", path),
		slog.String("size", humanize.IBytes(sizeBytes)),
	)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("disk %s already exists", path)
	}

	if err := fileops.CreateDirectory(ctx, m.exec, filepath.Dir(path)); err != nil {
		return err
	}

	err := qemuimg.Create(ctx, m.exec, qemuimg.CreateOptions{
		OutputFile:       path,
		OutputFileFormat: "qcow2",
		SizeBytes:        sizeBytes,
	})
	if err != nil {
		return err
	}

	m.logger.Info("created qcow2 disk",
		slog.String("path", path),
		slog.String("size", humanize.IBytes(sizeBytes)),
	)

	return nil
}

// RemoveDisk deletes a disk image. A missing file is not an error.
func (m *Manager) RemoveDisk(ctx context.Context, path string) error {
	m.logger.Info("removing disk", slog.String("path", path))
	return fileops.RemoveFile(ctx, m.exec, path)
}
